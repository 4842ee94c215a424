package grpc

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Methods reachable without a token
var publicMethods = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds the transport settings
type ServerConfig struct {
	APIToken     string
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// Server is the process liveness surface: standard gRPC health checking
// backed by store pings, plus reflection
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	store  Pinger
	cfg    ServerConfig
	log    zerolog.Logger
}

// NewServer creates a gRPC server with the logging and auth interceptors installed
func NewServer(store Pinger, cfg ServerConfig, log zerolog.Logger) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor(log),
			AuthInterceptor(cfg.APIToken, publicMethods...),
		),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	return &Server{
		grpc:   grpcServer,
		health: healthServer,
		store:  store,
		cfg:    cfg,
		log:    log.With().Str("component", "grpc").Logger(),
	}
}

// GRPC exposes the underlying server for registering further services
func (s *Server) GRPC() *grpc.Server {
	return s.grpc
}

// Serve accepts connections on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	return s.grpc.Serve(lis)
}

// WatchHealth pings the store every PingInterval and publishes the result
// until ctx is done
func (s *Server) WatchHealth(ctx context.Context) {
	s.CheckHealth(ctx)

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckHealth(ctx)
		}
	}
}

// CheckHealth pings the store once and updates the serving status
func (s *Server) CheckHealth(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.PingTimeout)
	defer cancel()

	next := healthpb.HealthCheckResponse_SERVING
	if err := s.store.Ping(pingCtx); err != nil {
		next = healthpb.HealthCheckResponse_NOT_SERVING
		s.log.Warn().Err(err).Msg("Store ping failed")
	}
	s.health.SetServingStatus("", next)
	return next
}

// Stop marks the server as not serving and drains in-flight calls
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.log.Info().Msg("gRPC server stopped")
}

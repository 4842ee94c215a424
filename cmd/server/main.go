package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	grpcadapter "github.com/simaogato/portfolio-backend/internal/adapter/grpc"
	"github.com/simaogato/portfolio-backend/internal/adapter/repository/memory"
	"github.com/simaogato/portfolio-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/portfolio-backend/internal/config"
	"github.com/simaogato/portfolio-backend/internal/domain"
	"github.com/simaogato/portfolio-backend/internal/logger"
	"github.com/simaogato/portfolio-backend/internal/scheduler"
)

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
	jobTimeout      = 30 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Setup Store
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeStore()

	// 2. Initialize Services (Use Cases)
	app, err := newServices(store, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	if cfg.SeedOwnerID != "" {
		owner := uuid.MustParse(cfg.SeedOwnerID)
		p, err := app.Seeder.Seed(ctx, owner)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to seed default portfolio")
		}
		log.Info().Str("portfolio_id", p.ID.String()).Msg("Default portfolio ready")
	}

	// 3. Start Scheduler
	sched := scheduler.New(cfg.Location(), log)
	if err := sched.AddJob(cfg.SnapshotSchedule, scheduler.NewSnapshotJob(app.Snapshots, cfg.Location(), jobTimeout, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register snapshot job")
	}
	if err := sched.AddJob(cfg.PerformanceSchedule, scheduler.NewPerformanceJob(store.Portfolios(), app.Performance, jobTimeout, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register performance job")
	}
	sched.Start()

	// 4. Start gRPC Server
	server := grpcadapter.NewServer(store, grpcadapter.ServerConfig{
		APIToken:     cfg.APIToken,
		PingInterval: cfg.HealthInterval,
	}, log)

	lis, err := net.Listen("tcp", cfg.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCPort).Msg("Failed to listen")
	}

	go server.WatchHealth(ctx)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serveErr:
		log.Error().Err(err).Msg("gRPC server exited")
	}

	server.Stop()
	sched.Stop()
}

// openStore returns the configured store and a function releasing it
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (domain.Store, func(), error) {
	if cfg.RepoKind == config.RepoMemory {
		log.Warn().Msg("Using in-memory store, data is lost on exit")
		return memory.NewStore(), func() {}, nil
	}

	var db *postgres.DB
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if db, err = postgres.NewDB(cfg.DatabaseURL); err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Database not ready")
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(connectDelay):
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
	return postgres.NewStore(db), closeDB, nil
}

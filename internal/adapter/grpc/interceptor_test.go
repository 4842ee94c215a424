package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

func TestAuthInterceptor(t *testing.T) {
	validToken := "test-token-123"
	interceptor := AuthInterceptor(validToken, "/grpc.health.v1.Health/")

	tests := []struct {
		name           string
		ctx            context.Context
		handlerCalled  bool
		expectedCode   codes.Code
		expectedErrMsg string
	}{
		{
			name: "Valid Token",
			ctx: metadata.NewIncomingContext(
				context.Background(),
				metadata.Pairs("authorization", validToken),
			),
			handlerCalled:  true,
			expectedCode:   codes.OK,
			expectedErrMsg: "",
		},
		{
			name: "Bearer Token",
			ctx: metadata.NewIncomingContext(
				context.Background(),
				metadata.Pairs("authorization", "Bearer "+validToken),
			),
			handlerCalled:  true,
			expectedCode:   codes.OK,
			expectedErrMsg: "",
		},
		{
			name: "Invalid Token",
			ctx: metadata.NewIncomingContext(
				context.Background(),
				metadata.Pairs("authorization", "wrong-token"),
			),
			handlerCalled:  false,
			expectedCode:   codes.Unauthenticated,
			expectedErrMsg: "invalid token",
		},
		{
			name:           "Missing Token",
			ctx:            context.Background(),
			handlerCalled:  false,
			expectedCode:   codes.Unauthenticated,
			expectedErrMsg: "missing metadata",
		},
		{
			name: "Missing Authorization Header",
			ctx: metadata.NewIncomingContext(
				context.Background(),
				metadata.Pairs("other-header", "value"),
			),
			handlerCalled:  false,
			expectedCode:   codes.Unauthenticated,
			expectedErrMsg: "missing authorization header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				handlerCalled = true
				return "success", nil
			}

			info := &grpc.UnaryServerInfo{
				FullMethod: "/test.Service/Method",
			}

			resp, err := interceptor(tt.ctx, "test-request", info, handler)

			assert.Equal(t, tt.handlerCalled, handlerCalled, "handler called status mismatch")

			if tt.expectedCode == codes.OK {
				assert.NoError(t, err)
				assert.Equal(t, "success", resp)
			} else {
				assert.Error(t, err)
				st, ok := status.FromError(err)
				assert.True(t, ok, "error should be a gRPC status")
				assert.Equal(t, tt.expectedCode, st.Code())
				assert.Contains(t, st.Message(), tt.expectedErrMsg)
			}
		})
	}
}

func TestAuthInterceptor_PublicMethodsAndDisabledAuth(t *testing.T) {
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "success", nil
	}

	public := AuthInterceptor("secret", "/grpc.health.v1.Health/")
	resp, err := public(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
	assert.NoError(t, err)
	assert.Equal(t, "success", resp)

	_, err = public(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/ledger.v1.Ledger/Execute"}, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	disabled := AuthInterceptor("")
	resp, err = disabled(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/ledger.v1.Ledger/Execute"}, handler)
	assert.NoError(t, err)
	assert.Equal(t, "success", resp)
}

func TestLoggingInterceptor_MapsErrors(t *testing.T) {
	interceptor := LoggingInterceptor(zerolog.Nop())
	info := &grpc.UnaryServerInfo{FullMethod: "/ledger.v1.Ledger/Execute"}

	tests := []struct {
		name         string
		handlerErr   error
		expectedCode codes.Code
	}{
		{name: "success", expectedCode: codes.OK},
		{name: "domain error", handlerErr: domain.ErrInsufficientFunds, expectedCode: codes.FailedPrecondition},
		{name: "status error passes through", handlerErr: status.Error(codes.PermissionDenied, "nope"), expectedCode: codes.PermissionDenied},
		{name: "unexpected error", handlerErr: errors.New("disk on fire"), expectedCode: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				if tt.handlerErr != nil {
					return nil, tt.handlerErr
				}
				return "ok", nil
			}

			_, err := interceptor(context.Background(), nil, info, handler)
			assert.Equal(t, tt.expectedCode, status.Code(err))
		})
	}
}

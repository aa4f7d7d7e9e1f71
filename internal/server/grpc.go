package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/libriscan/libriscan/internal/common"
	"github.com/libriscan/libriscan/internal/metrics"
)

// ServiceName is the health-checked service name.
const ServiceName = "libriscan"

// NewGRPCServer builds a gRPC server with health and reflection registered.
func NewGRPCServer(m *metrics.Metrics, logger *slog.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryInterceptor(m, logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	// Reflection for grpcurl
	reflection.Register(srv)
	return srv, hs
}

// UnaryInterceptor records each call, logs it, and converts plain errors into status errors.
func UnaryInterceptor(m *metrics.Metrics, logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			if _, ok := status.FromError(err); !ok {
				err = common.StatusFromError(err)
			}
		}
		code := status.Code(err)
		m.RecordGRPC(info.FullMethod, code.String(), time.Since(start))
		if err != nil {
			logger.Warn("grpc request failed", "method", info.FullMethod, "code", code.String(), "err", err)
		} else {
			logger.Debug("grpc request", "method", info.FullMethod, "elapsed_ms", time.Since(start).Milliseconds())
		}
		return resp, err
	}
}

package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor logs every unary call with its status code and
// duration.
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new LoggingInterceptor.
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	return &LoggingInterceptor{
		logger: logger.With("component", "LoggingInterceptor"),
	}
}

// Unary returns a gRPC unary server interceptor.
func (i *LoggingInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		if err != nil {
			i.logger.Warn("Unary call failed", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start), "error", err)
			return resp, err
		}
		i.logger.Debug("Unary call", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
		return resp, nil
	}
}

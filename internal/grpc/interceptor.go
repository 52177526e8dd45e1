package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"quicksocket/internal/logging"
)

// NewLoggingInterceptor logs every control call with its status code and
// turns handler panics into Internal errors.
func NewLoggingInterceptor(logger *logging.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = logging.L()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		started := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("control handler panicked", logging.String("method", info.FullMethod), logging.String("panic", toString(recovered)))
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
			fields := []logging.Field{
				logging.String("method", info.FullMethod),
				logging.String("code", status.Code(err).String()),
				logging.Duration("duration", time.Since(started)),
			}
			if err != nil && status.Code(err) != codes.NotFound {
				logger.Warn("control call failed", append(fields, logging.Error(err))...)
				return
			}
			logger.Debug("control call", fields...)
		}()
		return handler(ctx, req)
	}
}

func toString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case error:
		return value.Error()
	default:
		return "unknown panic"
	}
}

package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) workerTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.WorkerTokenHeaderName)
		if len(values) > 0 {
			token = values[0]
		}
	}
	if len(token) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	if err := auth.CheckWorkerToken(token, s.workerToken); err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return handler(ctx, req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	args := []any{"method", info.FullMethod, "code", code.String(), "latency_ms", time.Since(start).Milliseconds()}
	switch code {
	case codes.OK:
		s.logger.Debug(ctx, "rpc", args...)
	case codes.Internal, codes.Unknown:
		s.logger.Error(ctx, "rpc", append(args, "error", err)...)
	default:
		s.logger.Warn(ctx, "rpc", append(args, "error", err)...)
	}
	return resp, err
}

package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/RigelNana/backdrop/pkg/metrics"
)

// UnaryServerInterceptor 为 gRPC 服务添加 Prometheus 指标
func UnaryServerInterceptor(serviceName string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		metrics.RecordRequest(serviceName, info.FullMethod, statusLabel(err), time.Since(start))
		return resp, err
	}
}

// StreamServerInterceptor 为 gRPC 流添加 Prometheus 指标
// Health Watch streams stay open for the client's lifetime, so the
// recorded duration is the stream lifetime.
func StreamServerInterceptor(serviceName string) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		metrics.RecordRequest(serviceName, info.FullMethod, statusLabel(err), time.Since(start))
		return err
	}
}

func statusLabel(err error) string {
	if err == nil {
		return "success"
	}
	st, _ := status.FromError(err)
	return st.Code().String()
}

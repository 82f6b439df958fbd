package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/RigelNana/backdrop/pkg/metrics"
	grpcMetrics "github.com/RigelNana/backdrop/pkg/metrics/grpc"
	"github.com/RigelNana/backdrop/services/compose-service/bootstrap"
	"github.com/RigelNana/backdrop/services/compose-service/config"
	grpcHandler "github.com/RigelNana/backdrop/services/compose-service/handler/grpc"
	"github.com/RigelNana/backdrop/services/compose-service/worker"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志
	logger := bootstrap.NewLogger(cfg.Log.Level)

	// 启动 Prometheus metrics 服务器
	metrics.StartMetricsServer(cfg.Metrics.Port)
	logger.Infof("Prometheus metrics server started on :%s", cfg.Metrics.Port)

	app, err := bootstrap.New(cfg, logger)
	if err != nil {
		logger.Fatalf("初始化失败: %v", err)
	}
	logger.WithField("strategy", app.Orchestrator.Strategy()).Info("compose pipeline ready")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Kafka 消费者
	consumerDone := make(chan struct{})
	if cfg.Kafka.Enabled() {
		consumer := worker.NewConsumer(cfg.Kafka, app.Dispatcher, logger)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil {
				logger.WithError(err).Error("kafka consumer stopped")
			}
		}()
	} else {
		close(consumerDone)
		logger.Info("Kafka consumer disabled (missing config)")
	}

	// 启动gRPC服务器
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPC.Port))
	if err != nil {
		logger.Fatalf("gRPC监听失败: %v", err)
	}
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(grpcMetrics.UnaryServerInterceptor("compose-service")),
		grpc.StreamInterceptor(grpcMetrics.StreamServerInterceptor("compose-service")),
	)
	health := grpcHandler.NewHealthHandler(cfg.HasServerKey(), cfg.Provider.Strategy, logger)
	health.Register(grpcServer)

	// 启用反射，便于调试
	reflection.Register(grpcServer)

	logger.Infof("gRPC服务器启动在端口 %s", cfg.GRPC.Port)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatalf("gRPC服务器启动失败: %v", err)
		}
	}()

	// 等待中断信号
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("compose-service 正在关闭...")
	health.Shutdown()
	cancel()
	<-consumerDone
	grpcServer.GracefulStop()
}

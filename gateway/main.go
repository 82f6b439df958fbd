package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RigelNana/backdrop/gateway/handler"
	"github.com/RigelNana/backdrop/gateway/router"
	"github.com/RigelNana/backdrop/pkg/metrics"
	"github.com/RigelNana/backdrop/services/compose-service/bootstrap"
	"github.com/RigelNana/backdrop/services/compose-service/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootstrap.NewLogger("info").Fatalf("Failed to load config: %v", err)
	}
	logger := bootstrap.NewLogger(cfg.Log.Level)

	metrics.StartMetricsServer(cfg.Metrics.Port)

	app, err := bootstrap.New(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}
	app.Dispatcher.Start()

	r := router.Setup(router.Handlers{
		Compose: handler.NewComposeHandler(app.Orchestrator, app.Dispatcher, logger),
		Session: handler.NewSessionHandler(app.Sessions, app.Dispatcher, logger),
		Run:     handler.NewRunHandler(app.Dispatcher, logger),
	}, cfg.HTTP.MaxUploadBytes*2)

	srv := &http.Server{Addr: ":" + cfg.HTTP.Port, Handler: r}
	go func() {
		logger.WithFields(logrus.Fields{
			"port":           cfg.HTTP.Port,
			"strategy":       cfg.Provider.Strategy,
			"has_server_key": cfg.HasServerKey(),
		}).Info("Gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("gateway failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("http shutdown")
	}
	app.Dispatcher.Stop()
	logger.Info("Gateway stopped")
}

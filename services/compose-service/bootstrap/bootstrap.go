// Package bootstrap wires the compose pipeline from configuration. Both the
// gateway and the compose worker build on it.
package bootstrap

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/RigelNana/backdrop/services/compose-service/codec"
	"github.com/RigelNana/backdrop/services/compose-service/config"
	"github.com/RigelNana/backdrop/services/compose-service/database"
	"github.com/RigelNana/backdrop/services/compose-service/repository"
	"github.com/RigelNana/backdrop/services/compose-service/service"
)

type Components struct {
	Config       *config.Config
	DB           *gorm.DB
	Runs         repository.RunRepository
	Orchestrator *service.Orchestrator
	Dispatcher   *service.Dispatcher
	Sessions     *service.SessionService
	Hub          *service.ProgressHub
}

// NewLogger builds the JSON logger used by every entry point.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func New(cfg *config.Config, logger *logrus.Logger) (*Components, error) {
	db, err := database.InitDB(cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	runs := repository.NewRunRepository(db)

	fetcher, err := codec.NewFetcher(cfg.MinIO, cfg.Fetch, cfg.HTTP.MaxUploadBytes, logger)
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	if !cfg.MinIO.Enabled() {
		logger.Info("MINIO_ENDPOINT not set, s3:// references disabled")
	}

	generator, err := service.NewGenerator(cfg.Provider, logger)
	if err != nil {
		return nil, err
	}

	orchestrator := service.NewOrchestrator(generator, fetcher, cfg.Provider.APIKey, logger)
	hub := service.NewProgressHub()
	return &Components{
		Config:       cfg,
		DB:           db,
		Runs:         runs,
		Orchestrator: orchestrator,
		Dispatcher:   service.NewDispatcher(orchestrator, runs, hub, cfg.HTTP.RunQueueSize, logger),
		Sessions:     service.NewSessionService(cfg.HTTP.MaxUploadBytes, logger),
		Hub:          hub,
	}, nil
}

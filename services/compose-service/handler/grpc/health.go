package grpc

import (
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ComposeService is the health service name reported for the generation
// pipeline. The empty name reports process liveness.
const ComposeService = "backdrop.compose"

// HealthHandler exposes grpc.health.v1. The compose service is SERVING only
// when a server-side provider key is configured, matching hasServerKey on
// the HTTP health endpoint.
type HealthHandler struct {
	server       *health.Server
	hasServerKey bool
	strategy     string
	logger       *logrus.Logger
}

func NewHealthHandler(hasServerKey bool, strategy string, logger *logrus.Logger) *HealthHandler {
	h := &HealthHandler{
		server:       health.NewServer(),
		hasServerKey: hasServerKey,
		strategy:     strategy,
		logger:       logger,
	}
	h.refresh()
	return h
}

func (h *HealthHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

func (h *HealthHandler) refresh() {
	h.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.hasServerKey {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus(ComposeService, status)
	h.logger.WithFields(logrus.Fields{
		"service":        ComposeService,
		"status":         status.String(),
		"strategy":       h.strategy,
		"has_server_key": h.hasServerKey,
	}).Info("health status set")
}

// Shutdown flips every service to NOT_SERVING before the server stops.
func (h *HealthHandler) Shutdown() {
	h.server.Shutdown()
}

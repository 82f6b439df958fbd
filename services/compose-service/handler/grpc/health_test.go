package grpc

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func check(t *testing.T, h *HealthHandler, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthWithoutServerKey(t *testing.T) {
	h := NewHealthHandler(false, "chat", quietLogger())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, h, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, ComposeService))
}

func TestHealthWithServerKey(t *testing.T) {
	h := NewHealthHandler(true, "edit", quietLogger())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, h, ComposeService))

	h.Shutdown()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, ComposeService))
}

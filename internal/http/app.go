package http

import (
	"context"

	"handlit_backend/internal/events"
	"handlit_backend/platform/config"
	"handlit_backend/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs the readiness check.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled by cmd/api and turned into an engine by the router.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	// Health lists the dependencies /api/ready pings, keyed by name.
	Health   map[string]HealthChecker
	EventBus events.Bus
	// Metrics receives the HTTP instruments. Nil means the default registry.
	Metrics prometheus.Registerer
	Modules []Module
}

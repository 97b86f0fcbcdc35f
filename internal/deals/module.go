// Package deals provides the deal lifecycle module: quote and contact
// ingestion, the deal ledger and the prioritized worklist.
package deals

import (
	"fmt"

	"handlit_backend/internal/deals/handler"
	"handlit_backend/internal/deals/idempotency"
	"handlit_backend/internal/deals/repository"
	"handlit_backend/internal/deals/service"
	"handlit_backend/internal/events"
	apphttp "handlit_backend/internal/http"
	"handlit_backend/platform/config"
	"handlit_backend/platform/logger"
	"handlit_backend/platform/metrics"
	"handlit_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Config combines the config interfaces the module reads.
type Config interface {
	config.IdempotencyConfig
	config.LifecycleConfig
	config.CadenceConfig
	config.WorklistConfig
}

// Module represents the deals domain module
type Module struct {
	handler *handler.Handler
	service *service.Service
	guard   *idempotency.Guard
	log     *logger.Logger
}

// NewModule creates a new deals module with all dependencies wired.
// rdb is only used when the idempotency backend is redis.
func NewModule(pool *pgxpool.Pool, rdb redis.UniversalClient, eventBus events.Bus, val *validator.Validator, cfg Config, log *logger.Logger, m *metrics.DealMetrics) (*Module, error) {
	if log == nil {
		log = logger.Nop()
	}
	store, err := NewIdempotencyStore(cfg.GetIdempotencyBackend(), pool, rdb)
	if err != nil {
		return nil, err
	}

	guard := idempotency.NewGuard(store, nil, log, idempotency.Options{
		Retention:    cfg.GetIdempotencyRetention(),
		Lease:        cfg.GetIdempotencyLease(),
		Wait:         cfg.GetIdempotencyWait(),
		PollInterval: cfg.GetIdempotencyPollInterval(),
	})

	svc := service.New(repository.New(pool), guard, val, log, service.ConfigFrom(cfg, cfg, cfg))
	svc.SetEventBus(eventBus)
	svc.SetMetrics(m)

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		guard:   guard,
		log:     log,
	}, nil
}

// NewIdempotencyStore returns the store for the configured backend.
func NewIdempotencyStore(backend string, pool *pgxpool.Pool, rdb redis.UniversalClient) (idempotency.Store, error) {
	switch backend {
	case config.IdempotencyBackendPostgres, "":
		return idempotency.NewPostgresStore(pool), nil
	case config.IdempotencyBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("idempotency backend %q needs a redis client", backend)
		}
		return idempotency.NewRedisStore(rdb), nil
	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", backend)
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "deals"
}

// Service returns the service layer for the background worker.
func (m *Module) Service() *service.Service {
	return m.service
}

// Guard returns the idempotency guard so the scheduler can purge it.
func (m *Module) Guard() *idempotency.Guard {
	return m.guard
}

// SetEventQueue enables asynchronous ingestion.
func (m *Module) SetEventQueue(q handler.EventQueue) {
	m.handler.SetEventQueue(q)
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	deals := ctx.Protected.Group("/deals")

	ingestion := deals.Group("/events", ctx.Ingest...)
	m.handler.RegisterIngestionRoutes(ingestion)

	m.handler.RegisterRoutes(deals)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)

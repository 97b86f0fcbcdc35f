package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/scoring"
	"handlit_backend/internal/deals/service"
	"handlit_backend/internal/deals/transport"
	"handlit_backend/platform/apperr"
	"handlit_backend/platform/config"
	"handlit_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// DealEngine is the part of the deals service the worker drives.
type DealEngine interface {
	QuoteSent(ctx context.Context, actorRef string, req transport.QuoteSentRequest) (service.Outcome, error)
	QuoteViewed(ctx context.Context, actorRef string, req transport.QuoteViewedRequest) (service.Outcome, error)
	QuoteAccepted(ctx context.Context, actorRef string, req transport.QuoteAcceptedRequest) (service.Outcome, error)
	QuoteDeclined(ctx context.Context, actorRef string, req transport.QuoteDeclinedRequest) (service.Outcome, error)
	QuoteExpired(ctx context.Context, actorRef string, req transport.QuoteExpiredRequest) (service.Outcome, error)
	LogContactAttempt(ctx context.Context, actorRef string, req transport.ContactAttemptRequest) (service.Outcome, error)
	Rescore(ctx context.Context, id uuid.UUID) (domain.Deal, scoring.Breakdown, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	engine DealEngine
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, engine DealEngine, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
		IsFailure: isFailure,
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		engine: engine,
		log:    log,
	}
	w.mux.HandleFunc(TaskDealEvent, w.handleDealEvent)
	w.mux.HandleFunc(TaskDealRescore, w.handleDealRescore)

	return w, nil
}

// Run processes tasks until ctx is cancelled, then drains in-flight work.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker failed to start", "error", err)
		return err
	}

	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

func (w *Worker) handleDealEvent(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDealEventPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	ctx = context.WithValue(ctx, logger.ActorKey, payload.ActorRef)
	if id, ok := asynq.GetTaskID(ctx); ok {
		ctx = context.WithValue(ctx, logger.TaskIDKey, id)
	}

	out, err := w.apply(ctx, payload)
	if err != nil {
		return w.taskError(payload.EventType, err)
	}

	w.log.WithContext(ctx).Debug("deal event applied",
		"event", payload.EventType,
		"dealId", out.Deal.ID.String(),
		"replayed", out.Replayed,
		"noOp", out.NoOp,
	)
	return nil
}

func (w *Worker) apply(ctx context.Context, p DealEventPayload) (service.Outcome, error) {
	switch domain.EventType(p.EventType) {
	case domain.EventQuoteSent:
		var req transport.QuoteSentRequest
		if err := decodeRequest(p, &req); err != nil {
			return service.Outcome{}, err
		}
		return w.engine.QuoteSent(ctx, p.ActorRef, req)
	case domain.EventQuoteViewed:
		var req transport.QuoteViewedRequest
		if err := decodeRequest(p, &req); err != nil {
			return service.Outcome{}, err
		}
		return w.engine.QuoteViewed(ctx, p.ActorRef, req)
	case domain.EventQuoteAccepted:
		var req transport.QuoteAcceptedRequest
		if err := decodeRequest(p, &req); err != nil {
			return service.Outcome{}, err
		}
		return w.engine.QuoteAccepted(ctx, p.ActorRef, req)
	case domain.EventQuoteDeclined:
		var req transport.QuoteDeclinedRequest
		if err := decodeRequest(p, &req); err != nil {
			return service.Outcome{}, err
		}
		return w.engine.QuoteDeclined(ctx, p.ActorRef, req)
	case domain.EventQuoteExpired:
		var req transport.QuoteExpiredRequest
		if err := decodeRequest(p, &req); err != nil {
			return service.Outcome{}, err
		}
		return w.engine.QuoteExpired(ctx, p.ActorRef, req)
	case domain.EventContactAttemptLogged:
		var req transport.ContactAttemptRequest
		if err := decodeRequest(p, &req); err != nil {
			return service.Outcome{}, err
		}
		return w.engine.LogContactAttempt(ctx, p.ActorRef, req)
	default:
		return service.Outcome{}, apperr.BadRequest("unsupported deal event " + p.EventType)
	}
}

func decodeRequest(p DealEventPayload, dst any) error {
	if err := json.Unmarshal(p.Request, dst); err != nil {
		return apperr.Wrap(apperr.KindBadRequest, "malformed "+p.EventType+" request", err)
	}
	return nil
}

func (w *Worker) handleDealRescore(ctx context.Context, task *asynq.Task) error {
	id, err := ParseDealRescorePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if _, _, err := w.engine.Rescore(ctx, id); err != nil {
		return w.taskError(TaskDealRescore, err)
	}
	return nil
}

// taskError stops retries for events that can never succeed. Busy and
// infrastructure errors are returned as-is so asynq backs off and retries.
func (w *Worker) taskError(name string, err error) error {
	if apperr.IsRetryable(err) {
		return err
	}
	w.log.Warn("deal task rejected", "task", name, "error", err)
	return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
}

// isFailure keeps busy keys out of the failure statistics; they clear up
// once the in-flight delivery finishes.
func isFailure(err error) bool {
	return !apperr.Is(err, apperr.KindBusy)
}

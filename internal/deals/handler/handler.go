// Package handler exposes the deal engine over HTTP.
package handler

import (
	"context"
	"net/http"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/service"
	"handlit_backend/internal/deals/transport"
	"handlit_backend/platform/apperr"
	"handlit_backend/platform/httpkit"
	"handlit_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Token scopes checked by the deal routes.
const (
	ScopeIngest = "deals:ingest"
	ScopeRead   = "deals:read"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgQueueDisabled    = "asynchronous ingestion is not configured"
)

// EventQueue defers an inbound event to the background worker.
type EventQueue interface {
	EnqueueDealEvent(ctx context.Context, event domain.EventType, actorRef string, request any) (string, error)
	QueueName() string
}

// Handler handles HTTP requests for deals
type Handler struct {
	svc   *service.Service
	val   *validator.Validator
	queue EventQueue
}

// New creates a new deals handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// SetEventQueue enables ?async=true on the ingestion routes.
func (h *Handler) SetEventQueue(q EventQueue) {
	h.queue = q
}

// RegisterIngestionRoutes registers the routes that feed events into the engine.
func (h *Handler) RegisterIngestionRoutes(rg *gin.RouterGroup) {
	rg.Use(httpkit.RequireScope(ScopeIngest))
	rg.POST("/quote-sent", h.QuoteSent)
	rg.POST("/quote-viewed", h.QuoteViewed)
	rg.POST("/quote-accepted", h.QuoteAccepted)
	rg.POST("/quote-declined", h.QuoteDeclined)
	rg.POST("/quote-expired", h.QuoteExpired)
	rg.POST("/contact-attempts", h.LogContactAttempt)
}

// RegisterRoutes registers the read and maintenance routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	read := httpkit.RequireScope(ScopeRead)
	rg.GET("/worklist", read, h.Worklist)
	rg.GET("/:id", read, h.GetByID)
	rg.GET("/:id/events", read, h.ListEvents)
	rg.POST("/:id/rescore", httpkit.RequireScope(ScopeIngest), h.Rescore)
}

// QuoteSent handles POST /api/v1/deals/events/quote-sent
func (h *Handler) QuoteSent(c *gin.Context) {
	var req transport.QuoteSentRequest
	if !h.bind(c, &req) {
		return
	}
	h.ingest(c, domain.EventQuoteSent, req, func(ctx context.Context, actor string) (service.Outcome, error) {
		return h.svc.QuoteSent(ctx, actor, req)
	})
}

// QuoteViewed handles POST /api/v1/deals/events/quote-viewed
func (h *Handler) QuoteViewed(c *gin.Context) {
	var req transport.QuoteViewedRequest
	if !h.bind(c, &req) {
		return
	}
	h.ingest(c, domain.EventQuoteViewed, req, func(ctx context.Context, actor string) (service.Outcome, error) {
		return h.svc.QuoteViewed(ctx, actor, req)
	})
}

// QuoteAccepted handles POST /api/v1/deals/events/quote-accepted
func (h *Handler) QuoteAccepted(c *gin.Context) {
	var req transport.QuoteAcceptedRequest
	if !h.bind(c, &req) {
		return
	}
	h.ingest(c, domain.EventQuoteAccepted, req, func(ctx context.Context, actor string) (service.Outcome, error) {
		return h.svc.QuoteAccepted(ctx, actor, req)
	})
}

// QuoteDeclined handles POST /api/v1/deals/events/quote-declined
func (h *Handler) QuoteDeclined(c *gin.Context) {
	var req transport.QuoteDeclinedRequest
	if !h.bind(c, &req) {
		return
	}
	h.ingest(c, domain.EventQuoteDeclined, req, func(ctx context.Context, actor string) (service.Outcome, error) {
		return h.svc.QuoteDeclined(ctx, actor, req)
	})
}

// QuoteExpired handles POST /api/v1/deals/events/quote-expired
func (h *Handler) QuoteExpired(c *gin.Context) {
	var req transport.QuoteExpiredRequest
	if !h.bind(c, &req) {
		return
	}
	h.ingest(c, domain.EventQuoteExpired, req, func(ctx context.Context, actor string) (service.Outcome, error) {
		return h.svc.QuoteExpired(ctx, actor, req)
	})
}

// LogContactAttempt handles POST /api/v1/deals/events/contact-attempts
func (h *Handler) LogContactAttempt(c *gin.Context) {
	var req transport.ContactAttemptRequest
	if !h.bind(c, &req) {
		return
	}
	h.ingest(c, domain.EventContactAttemptLogged, req, func(ctx context.Context, actor string) (service.Outcome, error) {
		return h.svc.LogContactAttempt(ctx, actor, req)
	})
}

// Worklist handles GET /api/v1/deals/worklist?owner=...&includeAll=true
func (h *Handler) Worklist(c *gin.Context) {
	var req transport.WorklistRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	view, err := h.svc.Worklist(c.Request.Context(), req.OwnerRef, req.IncludeAll)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toWorklistResponse(view))
}

// GetByID handles GET /api/v1/deals/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	deal, err := h.svc.GetDeal(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toDealResponse(deal))
}

// ListEvents handles GET /api/v1/deals/:id/events
func (h *Handler) ListEvents(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	evts, err := h.svc.ListEvents(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	resp, err := toEventList(evts)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// Rescore handles POST /api/v1/deals/:id/rescore
func (h *Handler) Rescore(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	deal, breakdown, err := h.svc.Rescore(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.RescoreResponse{
		Deal:  toDealResponse(deal),
		Score: toScoreResponse(breakdown),
	})
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	return true
}

// ingest applies the event inline, or hands it to the worker when the
// caller asked for ?async=true.
func (h *Handler) ingest(c *gin.Context, event domain.EventType, req any, apply func(ctx context.Context, actor string) (service.Outcome, error)) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	actor := identity.ActorRef()

	if c.Query("async") == "true" {
		h.enqueue(c, event, actor, req)
		return
	}

	out, err := apply(c.Request.Context(), actor)
	if httpkit.HandleError(c, err) {
		return
	}

	if out.Created {
		httpkit.Created(c, toEventResult(out))
		return
	}
	httpkit.OK(c, toEventResult(out))
}

func (h *Handler) enqueue(c *gin.Context, event domain.EventType, actor string, req any) {
	if h.queue == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, msgQueueDisabled, nil)
		return
	}
	// Reject what the worker would reject before it costs a queue slot.
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed).WithDetails(validator.FieldErrors(err)))
		return
	}

	taskID, err := h.queue.EnqueueDealEvent(c.Request.Context(), event, actor, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Accepted(c, transport.AcceptedResponse{TaskID: taskID, Queue: h.queue.QueueName()})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

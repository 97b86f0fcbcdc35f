package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/idempotency"
	"handlit_backend/internal/deals/repository/memory"
	"handlit_backend/internal/deals/service"
	"handlit_backend/internal/deals/transport"
	"handlit_backend/platform/clock"
	"handlit_backend/platform/httpkit"
	"handlit_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const actorRef = "svc:quoting"

type fakeQueue struct {
	event   domain.EventType
	actor   string
	request any
}

func (q *fakeQueue) EnqueueDealEvent(_ context.Context, event domain.EventType, actor string, request any) (string, error) {
	q.event, q.actor, q.request = event, actor, request
	return "task-1", nil
}

func (q *fakeQueue) QueueName() string { return "deals" }

func newTestRouter(t *testing.T, scopes ...string) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	guard := idempotency.NewGuard(idempotency.NewMemoryStore(), clk, nil, idempotency.Options{})
	val := validator.New()
	svc := service.New(memory.New(), guard, val, nil, service.DefaultConfig())
	svc.SetClock(clk)
	h := New(svc, val)

	engine := gin.New()
	group := engine.Group("/api/v1/deals")
	if scopes != nil {
		group.Use(func(c *gin.Context) {
			c.Set(httpkit.ContextActorKey, actorRef)
			c.Set(httpkit.ContextScopesKey, scopes)
			c.Next()
		})
	}
	h.RegisterIngestionRoutes(group.Group("/events"))
	h.RegisterRoutes(group)
	return engine, h
}

func do(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func quoteSentBody() map[string]any {
	return map[string]any{
		"revisionId":     "rev-1",
		"revisionNumber": 1,
		"revisionType":   "final_quote",
		"accountRef":     "acc-1",
		"contactRef":     "con-1",
		"ownerRef":       "rep-1",
		"value":          map[string]any{"kind": "binding", "amount": "1200.50"},
	}
}

func TestQuoteSentCreatesThenReplays(t *testing.T) {
	engine, _ := newTestRouter(t, ScopeIngest, ScopeRead)

	rec := do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent", quoteSentBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var first transport.EventResultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.NotNil(t, first.Deal)
	assert.True(t, first.Created)
	assert.Equal(t, "proposal", first.Deal.Stage)
	assert.Equal(t, "binding", first.Deal.Value.Kind)
	assert.Equal(t, "1200.5", first.Deal.Value.Amount.String())

	rec = do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent", quoteSentBody())
	require.Equal(t, http.StatusOK, rec.Code)
	var again transport.EventResultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Deal.ID, again.Deal.ID)

	rec = do(t, engine, http.MethodGet, "/api/v1/deals/"+first.Deal.ID.String()+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ledger struct {
		Items []struct {
			EventType string `json:"eventType"`
			ActorRef  string `json:"actorRef"`
			NewValue  struct {
				Kind string `json:"kind"`
			} `json:"newValue"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ledger))
	require.NotEmpty(t, ledger.Items)
	assert.Equal(t, "deal_created", ledger.Items[0].EventType)
	assert.Equal(t, "creation", ledger.Items[0].NewValue.Kind)
	assert.Equal(t, actorRef, ledger.Items[0].ActorRef)
}

func TestIngestionErrors(t *testing.T) {
	engine, _ := newTestRouter(t, ScopeIngest, ScopeRead)

	rec := do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := quoteSentBody()
	delete(body, "revisionId")
	rec = do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-viewed", map[string]any{"revisionId": "unknown", "revisionNumber": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusCreated, do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent", quoteSentBody()).Code)
	changed := quoteSentBody()
	changed["value"] = map[string]any{"kind": "binding", "amount": "999"}
	rec = do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent", changed)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIngestionRequiresIdentity(t *testing.T) {
	engine, _ := newTestRouter(t)

	rec := do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent", quoteSentBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutesCheckScopes(t *testing.T) {
	engine, _ := newTestRouter(t, ScopeRead)

	rec := do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent", quoteSentBody())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, engine, http.MethodGet, "/api/v1/deals/worklist?owner=rep-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	engine, _ = newTestRouter(t, ScopeIngest)
	rec = do(t, engine, http.MethodGet, "/api/v1/deals/worklist?owner=rep-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	engine, _ = newTestRouter(t, httpkit.ScopeAll)
	rec = do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent", quoteSentBody())
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestContactAttemptsAndWorklist(t *testing.T) {
	engine, _ := newTestRouter(t, ScopeIngest, ScopeRead)
	require.Equal(t, http.StatusCreated, do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent", quoteSentBody()).Code)

	var last transport.EventResultResponse
	for _, id := range []string{"a1", "a2", "a3"} {
		rec := do(t, engine, http.MethodPost, "/api/v1/deals/events/contact-attempts", map[string]any{
			"attemptId":  id,
			"contactRef": "con-1",
			"outcome":    "no_contact",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &last))
	}
	assert.True(t, last.AutoClosed)
	assert.Equal(t, "closed_lost", last.Deal.Stage)
	require.NotNil(t, last.Deal.ClosedReason)
	assert.Contains(t, *last.Deal.ClosedReason, "3 attempts")

	rec := do(t, engine, http.MethodGet, "/api/v1/deals/worklist?owner=rep-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var wl transport.WorklistResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wl))
	assert.Equal(t, "rep-1", wl.OwnerRef)
	assert.Empty(t, wl.Items, "closed deals never appear on the worklist")

	rec = do(t, engine, http.MethodGet, "/api/v1/deals/worklist", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAndRescore(t *testing.T) {
	engine, _ := newTestRouter(t, ScopeIngest, ScopeRead)

	rec := do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent", quoteSentBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created transport.EventResultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Deal.ID.String()

	rec = do(t, engine, http.MethodGet, "/api/v1/deals/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, engine, http.MethodPost, "/api/v1/deals/"+id+"/rescore", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rescored transport.RescoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rescored))
	assert.Equal(t, rescored.Score.Score, rescored.Deal.PriorityScore)
	assert.NotEmpty(t, rescored.Score.Version)

	assert.Equal(t, http.StatusBadRequest, do(t, engine, http.MethodGet, "/api/v1/deals/not-a-uuid", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, engine, http.MethodGet, "/api/v1/deals/"+uuid.NewString(), nil).Code)
}

func TestAsyncIngestion(t *testing.T) {
	engine, h := newTestRouter(t, ScopeIngest, ScopeRead)

	rec := do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent?async=true", quoteSentBody())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	queue := &fakeQueue{}
	h.SetEventQueue(queue)

	rec = do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent?async=true", quoteSentBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted transport.AcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "task-1", accepted.TaskID)
	assert.Equal(t, "deals", accepted.Queue)
	assert.Equal(t, domain.EventQuoteSent, queue.event)
	assert.Equal(t, actorRef, queue.actor)

	body := quoteSentBody()
	delete(body, "revisionType")
	rec = do(t, engine, http.MethodPost, "/api/v1/deals/events/quote-sent?async=true", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

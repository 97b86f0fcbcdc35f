// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	// RequestIDKey is the context key for the HTTP request id.
	RequestIDKey contextKey = "request_id"
	// ActorKey is the context key for the authenticated actor reference.
	ActorKey contextKey = "actor"
	// TaskIDKey is the context key for the background task being processed.
	TaskIDKey contextKey = "task_id"
)

var contextFields = []contextKey{RequestIDKey, ActorKey, TaskIDKey}

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a logger for env. Development gets human readable text at
// debug level; everything else gets JSON. LOG_LEVEL overrides the level.
func New(env string) *Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	dev := strings.EqualFold(env, "development")
	if dev {
		opts.Level = slog.LevelDebug
	}
	if lvl, ok := parseLevel(os.Getenv("LOG_LEVEL")); ok {
		opts.Level = lvl
	}

	var handler slog.Handler
	if dev {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

func parseLevel(s string) (slog.Level, bool) {
	if strings.TrimSpace(s) == "" {
		return 0, false
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, false
	}
	return lvl, true
}

// Nop returns a logger that discards everything. Used by tests and by
// components constructed without a logger.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger carrying the request id, actor and task id
// found on ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	var attrs []any
	for _, key := range contextFields {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{Logger: l.With(attrs...)}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// RateLimitExceeded logs a throttled caller.
func (l *Logger) RateLimitExceeded(caller, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("caller", caller),
		slog.String("path", path),
	)
}

// DealTransition logs a lifecycle event applied to a deal.
func (l *Logger) DealTransition(dealID, event, oldStage, newStage string, closed bool) {
	l.Info("deal_transition",
		slog.String("deal_id", dealID),
		slog.String("event", event),
		slog.String("old_stage", oldStage),
		slog.String("new_stage", newStage),
		slog.Bool("closed", closed),
	)
}

// IdempotencyReplay logs an inbound event that was answered from a stored result.
func (l *Logger) IdempotencyReplay(key string, dealID string) {
	l.Debug("idempotency_replay",
		slog.String("key", key),
		slog.String("deal_id", dealID),
	)
}

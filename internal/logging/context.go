package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	flowsheetIDKey ctxKey = iota
	equipmentIDKey
	runIDKey
)

// WithFlowsheetID returns a context with the flowsheet ID set.
func WithFlowsheetID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, flowsheetIDKey, id)
}

// WithEquipmentID returns a context with the equipment ID set.
func WithEquipmentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, equipmentIDKey, id)
}

// WithRunID returns a context with the solve-run ID set.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// FlowsheetID extracts the flowsheet ID from the context, or "" if absent.
func FlowsheetID(ctx context.Context) string {
	v, _ := ctx.Value(flowsheetIDKey).(string)
	return v
}

// EquipmentID extracts the equipment ID from the context, or "" if absent.
func EquipmentID(ctx context.Context) string {
	v, _ := ctx.Value(equipmentIDKey).(string)
	return v
}

// RunID extracts the solve-run ID from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := FlowsheetID(ctx); v != "" {
		r.AddAttrs(slog.String("flowsheet_id", v))
	}
	if v := EquipmentID(ctx); v != "" {
		r.AddAttrs(slog.String("equipment_id", v))
	}
	if v := RunID(ctx); v != "" {
		r.AddAttrs(slog.String("run_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// Package requestctx carries per-request values (logger, trace ids, shopper session) on a context.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type (
	loggerKey  struct{}
	traceKey   struct{}
	sessionKey struct{}
)

// SessionCookie names the cookie holding the shopper session id.
const SessionCookie = "sf_session"

var nop = zap.NewNop()

// TraceInfo identifies the span serving a request.
type TraceInfo struct {
	TraceID string
	SpanID  string
	Sampled bool
}

func store[T any](ctx context.Context, key any, v T) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func load[T any](ctx context.Context, key any) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithLogger attaches logger to ctx. A nil logger is stored as a no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = nop
	}
	return store(ctx, loggerKey{}, logger)
}

// Logger returns the request logger, or a shared no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := load[*zap.Logger](ctx, loggerKey{}); ok && logger != nil {
		return logger
	}
	return nop
}

// NoopLogger is the logger Logger falls back to.
func NoopLogger() *zap.Logger { return nop }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return store(ctx, traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	return load[TraceInfo](ctx, traceKey{})
}

// TraceID is a shortcut for Trace(ctx).TraceID.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithSession records the shopper session id that scopes carts, idempotency keys and rate limits.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return store(ctx, sessionKey{}, sessionID)
}

// Session returns the shopper session id, or "" outside the /api/v1 group.
func Session(ctx context.Context) string {
	id, _ := load[string](ctx, sessionKey{})
	return id
}

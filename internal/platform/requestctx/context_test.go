package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerFallsBackToNoop(t *testing.T) {
	if got := Logger(context.Background()); got != NoopLogger() {
		t.Fatalf("expected noop logger, got %v", got)
	}
	if got := Logger(WithLogger(context.Background(), nil)); got != NoopLogger() {
		t.Fatalf("nil logger should be stored as noop")
	}

	logger := zap.NewExample()
	if got := Logger(WithLogger(context.Background(), logger)); got != logger {
		t.Fatalf("expected injected logger")
	}
}

func TestTraceAndSessionAreIndependent(t *testing.T) {
	ctx := WithSession(context.Background(), "sess-1")
	if TraceID(ctx) != "" {
		t.Fatalf("session must not leak into trace lookup")
	}

	ctx = WithTrace(ctx, TraceInfo{TraceID: "abc", SpanID: "def", Sampled: true})
	if TraceID(ctx) != "abc" {
		t.Fatalf("expected trace id abc, got %q", TraceID(ctx))
	}
	if info, ok := Trace(ctx); !ok || !info.Sampled {
		t.Fatalf("expected sampled trace info, got %+v", info)
	}
	if Session(ctx) != "sess-1" {
		t.Fatalf("expected session sess-1, got %q", Session(ctx))
	}
	if Session(context.Background()) != "" {
		t.Fatalf("expected empty session for bare context")
	}
}

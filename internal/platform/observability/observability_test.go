package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fazaproducts/storefront/internal/platform/idempotency"
	"github.com/fazaproducts/storefront/internal/platform/requestctx"
)

func TestCloudTraceFormatExtract(t *testing.T) {
	carrier := propagation.HeaderCarrier(http.Header{})
	carrier.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")

	sc := trace.SpanContextFromContext(CloudTraceFormat{}.Extract(context.Background(), carrier))
	if !sc.IsValid() {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
	if sc.SpanID().String() != "0000000000000001" {
		t.Fatalf("decimal span id should map to 1, got %s", sc.SpanID())
	}
	if !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("expected sampled remote span context")
	}
}

func TestCloudTraceFormatRoundTrip(t *testing.T) {
	header := "105445aa7843bc8bf206b12000100000/1234567890;o=0"
	in := propagation.HeaderCarrier(http.Header{})
	in.Set(cloudTraceHeader, header)
	ctx := CloudTraceFormat{}.Extract(context.Background(), in)

	out := propagation.HeaderCarrier(http.Header{})
	CloudTraceFormat{}.Inject(ctx, out)
	if got := out.Get(cloudTraceHeader); got != header {
		t.Fatalf("expected %q, got %q", header, got)
	}
}

func TestParseCloudTraceRejectsMalformed(t *testing.T) {
	for _, header := range []string{"", "abc", "short/1", "105445aa7843bc8bf206b12000100000/", "105445aa7843bc8bf206b12000100000/0;o=1", "zz5445aa7843bc8bf206b12000100000/1"} {
		if _, ok := parseCloudTrace(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
	if _, ok := parseSpanID("ab12"); !ok {
		t.Fatalf("expected hex span id to be accepted")
	}
}

func TestTraceMiddlewareKeepsRemoteTrace(t *testing.T) {
	var seen string
	handler := TraceMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.TraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/7;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected remote trace id on context, got %q", seen)
	}
	if !strings.HasPrefix(rec.Header().Get(cloudTraceHeader), "105445aa7843bc8bf206b12000100000/") {
		t.Fatalf("expected trace header echoed, got %q", rec.Header().Get(cloudTraceHeader))
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)

	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/explode", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"internal_error"`) {
		t.Fatalf("expected internal_error envelope, got %s", rec.Body.String())
	}
	if logs.FilterMessage("handler panic").Len() != 1 {
		t.Fatalf("expected panic to be logged once, got %d", logs.Len())
	}
}

func TestRequestLoggerMiddlewareLogsStatusAndRoute(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)), RequestLoggerMiddleware("faza-prod"))
	router.Get("/api/v1/catalog/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(idempotency.ReplayHeader, "true")
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products/99", nil)
	req.AddCookie(&http.Cookie{Name: requestctx.SessionCookie, Value: "sess-1"})
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion log, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Fatalf("expected 4xx to log at warn, got %s", entries[0].Level)
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusNotFound) {
		t.Fatalf("expected status 404 logged, got %v", fields["status"])
	}
	if fields["route"] != "/api/v1/catalog/products/{id}" {
		t.Fatalf("expected route pattern, got %v", fields["route"])
	}
	if fields["session_id"] != "sess-1" {
		t.Fatalf("expected session id logged, got %v", fields["session_id"])
	}
	if fields["idempotent_replay"] != true {
		t.Fatalf("expected replay flag, got %v", fields["idempotent_replay"])
	}
}

func TestClipStripsControlCharacters(t *testing.T) {
	if got := clip("a\x00b\nc", 10); got != "abc" {
		t.Fatalf("unexpected clip result %q", got)
	}
	if got := logSession(strings.Repeat("é", 100)); len([]rune(got)) != maxSessionLen {
		t.Fatalf("expected session clipped to %d runes, got %d", maxSessionLen, len([]rune(got)))
	}
	if logRoute("") != "/" {
		t.Fatalf("empty route should log as /")
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(LoggerOptions{Level: "chatty"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("unknown level should fall back to info")
	}
	if !logger.Core().Enabled(zap.InfoLevel) {
		t.Fatalf("info should be enabled")
	}
}

func TestSetupTracingNoneIsNoop(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "storefront", TraceExporterNone)
	if err != nil {
		t.Fatalf("setup tracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := SetupTracing(context.Background(), "storefront", "jaeger"); err == nil {
		t.Fatalf("expected unsupported exporter error")
	}
}

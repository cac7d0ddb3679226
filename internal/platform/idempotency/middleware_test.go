package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/fazaproducts/storefront/internal/platform/requestctx"
)

var fixedTime = time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

func newRequest(body, key, session string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/checkout", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req.WithContext(requestctx.WithSession(req.Context(), session))
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"call":` + string(rune('0'+*calls)) + `}`))
	})
}

func assertErrorCode(t *testing.T, body []byte, code string) {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload["error"] != code {
		t.Fatalf("expected error %q, got %v", code, payload["error"])
	}
}

func TestMiddlewareWithoutKeyPassesThrough(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore())(countingHandler(&calls, http.StatusOK))
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), newRequest(`{}`, "", "s1"))
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestMiddlewareRequiredKey(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithRequired(true))(countingHandler(&calls, http.StatusOK))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest(`{}`, "", "s1"))
	if rr.Code != http.StatusBadRequest || calls != 0 {
		t.Fatalf("expected 400 without handler call, got %d (calls %d)", rr.Code, calls)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_required")
}

func testReplay(t *testing.T, store Store) {
	t.Helper()
	var calls int
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(countingHandler(&calls, http.StatusAccepted))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newRequest(`{"a":1}`, "key-1", "s1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newRequest(`{"a":1}`, "key-1", "s1"))

	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
	if second.Code != http.StatusAccepted || second.Body.String() != first.Body.String() {
		t.Fatalf("expected replay of %d %q, got %d %q", first.Code, first.Body.String(), second.Code, second.Body.String())
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatalf("expected replay header")
	}

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, newRequest(`{"a":1}`, "key-1", "s2"))
	if calls != 2 {
		t.Fatalf("keys must be scoped per session, got %d calls", calls)
	}

	conflict := httptest.NewRecorder()
	handler.ServeHTTP(conflict, newRequest(`{"a":2}`, "key-1", "s1"))
	if conflict.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a reused key, got %d", conflict.Code)
	}
	assertErrorCode(t, conflict.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddlewareReplaysMemory(t *testing.T) {
	testReplay(t, NewMemoryStore())
}

func TestMiddlewareReplaysRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	testReplay(t, NewRedisStore(client))
	if len(mr.Keys()) != 2 {
		t.Fatalf("expected one record per session, got %v", mr.Keys())
	}
	for _, key := range mr.Keys() {
		if ttl := mr.TTL(key); ttl != DefaultTTL {
			t.Fatalf("expected ttl %s on %s, got %s", DefaultTTL, key, ttl)
		}
	}
}

func TestMiddlewareServerErrorsAreRetryable(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore())(countingHandler(&calls, http.StatusServiceUnavailable))
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), newRequest(`{}`, "retry", "s1"))
	}
	if calls != 2 {
		t.Fatalf("expected 5xx responses not to be stored, got %d calls", calls)
	}
}

type failingStore struct{}

func (failingStore) Claim(context.Context, string, string, time.Time, time.Duration) (Claim, error) {
	return Claim{}, errors.New("redis down")
}

func (failingStore) Complete(context.Context, string, Entry, time.Duration) error { return nil }

func (failingStore) Release(context.Context, string) error { return nil }

func TestMiddlewareStoreOutageFallsThrough(t *testing.T) {
	var calls int
	handler := Middleware(failingStore{})(countingHandler(&calls, http.StatusOK))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newRequest(`{}`, "k", "s1"))
	if rr.Code != http.StatusOK || calls != 1 {
		t.Fatalf("expected pass-through, got %d (calls %d)", rr.Code, calls)
	}
}

func TestMemoryStoreInFlightAndCleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Claim(ctx, "k", "fp", fixedTime, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	claim, err := store.Claim(ctx, "k", "fp", fixedTime, time.Minute)
	if err != nil || claim.Outcome != InFlight {
		t.Fatalf("expected in-flight claim, got %v %v", claim.Outcome, err)
	}
	if removed := store.CleanupExpired(fixedTime.Add(2 * time.Minute)); removed != 1 {
		t.Fatalf("expected 1 expired entry, got %d", removed)
	}
	claim, err = store.Claim(ctx, "k", "other", fixedTime.Add(3*time.Minute), time.Minute)
	if err != nil || claim.Outcome != Proceed {
		t.Fatalf("expected a fresh claim after cleanup, got %v %v", claim.Outcome, err)
	}
}

func TestReplayDropsCookiesAndTraceHeaders(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Set-Cookie", "sf_session=abc")
		w.Header().Set("X-Cloud-Trace-Context", "105445aa7843bc8bf206b12000100000/1;o=1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newRequest(`{}`, "cookie", "s1"))
	if first.Header().Get("Set-Cookie") == "" {
		t.Fatalf("original response must keep its cookie")
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newRequest(`{}`, "cookie", "s1"))
	if second.Code != http.StatusCreated || second.Header().Get(ReplayHeader) != "true" {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Header().Get("Set-Cookie") != "" || second.Header().Get("X-Cloud-Trace-Context") != "" {
		t.Fatalf("replay must not carry cookies or trace headers: %v", second.Header())
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content type replayed")
	}
}

func TestMiddlewareIgnoresSafeMethods(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithRequired(true))(countingHandler(&calls, http.StatusOK))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(KeyHeader, "k")
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("GET must never be replayed, got %d calls", calls)
	}
}

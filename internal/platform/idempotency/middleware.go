package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fazaproducts/storefront/internal/platform/httpx"
	"github.com/fazaproducts/storefront/internal/platform/requestctx"
)

const (
	// KeyHeader carries the client-chosen key.
	KeyHeader = "Idempotency-Key"
	// ReplayHeader is set to "true" on replayed responses.
	ReplayHeader = "X-Idempotent-Replay"

	maxKeyLength   = 255
	maxGuardedBody = 1 << 20
)

type guard struct {
	store    Store
	header   string
	ttl      time.Duration
	required bool
	now      func() time.Time
	logger   *zap.Logger
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*guard)

func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL sets how long completed responses stay replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithRequired rejects mutating requests that carry no key. By default they run unguarded.
func WithRequired(required bool) MiddlewareOption {
	return func(g *guard) { g.required = required }
}

func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) MiddlewareOption {
	return func(g *guard) {
		if clock != nil {
			g.now = clock
		}
	}
}

// Middleware guards POST, PUT, PATCH and DELETE requests that carry an Idempotency-Key.
//
// Keys are scoped to the shopper session, so two sessions never share one. A retry with the same
// key and body replays the first response; a different body gets 409. 5xx responses are not
// kept, so a retry runs the handler again. When the store itself fails the request runs
// unguarded.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	g := &guard{store: store, header: KeyHeader, ttl: DefaultTTL, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(next, w, r)
		})
	}
}

func (g *guard) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !mutating(r.Method) {
		next.ServeHTTP(w, r)
		return
	}

	key := strings.TrimSpace(r.Header.Get(g.header))
	switch {
	case key == "" && g.required:
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", g.header+" header is required", http.StatusBadRequest))
		return
	case key == "":
		next.ServeHTTP(w, r)
		return
	case len(key) > maxKeyLength:
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_invalid", g.header+" is too long", http.StatusBadRequest))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxGuardedBody))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body is too large", http.StatusRequestEntityTooLarge))
		return
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	scoped := sessionScope(requestctx.Session(ctx)) + "|" + key
	fingerprint := fingerprintOf(r, body)

	claim, err := g.store.Claim(ctx, scoped, fingerprint, g.now().UTC(), g.ttl)
	switch {
	case errors.Is(err, ErrFingerprintMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "this idempotency key was already used for a different request", http.StatusConflict))
		return
	case err != nil:
		g.logger.Warn("idempotency store unavailable; serving unguarded", zap.Error(err))
		next.ServeHTTP(w, r)
		return
	}

	switch claim.Outcome {
	case Replay:
		replay(w, claim.Entry)
		return
	case InFlight:
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "an earlier request with this idempotency key is still running", http.StatusConflict))
		return
	}

	buf := &bufferedWriter{header: make(http.Header)}
	next.ServeHTTP(buf, r)
	status := buf.statusCode()

	if status >= http.StatusInternalServerError {
		if err := g.store.Release(ctx, scoped); err != nil {
			g.logger.Warn("idempotency release failed", zap.Error(err))
		}
	} else {
		entry := finishedEntry(fingerprint, status, buf.header, buf.body.Bytes(), g.now().UTC(), g.ttl)
		if err := g.store.Complete(ctx, scoped, entry, g.ttl); err != nil {
			g.logger.Warn("idempotency response not stored", zap.Error(err))
			_ = g.store.Release(ctx, scoped)
		}
	}
	buf.flushTo(w)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func sessionScope(session string) string {
	if session == "" {
		return "anonymous"
	}
	return session
}

// fingerprintOf hashes method, path, query and body.
func fingerprintOf(r *http.Request, body []byte) string {
	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, r.URL.RawQuery} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, e Entry) {
	for name, values := range e.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(ReplayHeader, "true")
	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(e.Body)
}

// bufferedWriter holds the handler response until it has been stored.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.WriteHeader(http.StatusOK)
	return b.body.Write(p)
}

func (b *bufferedWriter) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedWriter) flushTo(w http.ResponseWriter) {
	for name, values := range b.header {
		w.Header()[name] = values
	}
	w.WriteHeader(b.statusCode())
	_, _ = b.body.WriteTo(w)
}

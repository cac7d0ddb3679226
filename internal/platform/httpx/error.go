// Package httpx writes the storefront's JSON responses and error envelope.
package httpx

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/fazaproducts/storefront/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
)

// Error is an API failure: a stable machine-readable code, a message safe to show a shopper and
// the HTTP status. Details are merged into the top level of the envelope.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func (e Error) Error() string { return e.Code + ": " + e.Message }

// NewError builds an Error. A status outside the 4xx/5xx range becomes 500.
func NewError(code, message string, status int) Error {
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    oneLine(code, maxCodeLen),
		Message: oneLine(message, maxMessageLen),
		Status:  status,
	}
}

// WithDetails returns a copy of e with details added to any it already carries.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	maps.Copy(merged, details)
	e.Details = merged
	return e
}

// WriteError writes the envelope {error, message, status, request_id?, trace_id?, ...details}.
// The envelope keys take precedence over details with the same name.
func WriteError(ctx context.Context, w http.ResponseWriter, e Error) {
	body := make(map[string]any, len(e.Details)+5)
	maps.Copy(body, e.Details)
	body["error"] = e.Code
	body["message"] = e.Message
	body["status"] = e.Status
	if id := oneLine(middleware.GetReqID(ctx), maxCodeLen); id != "" {
		body["request_id"] = id
	}
	if traceID := requestctx.TraceID(ctx); traceID != "" {
		body["trace_id"] = traceID
	}
	WriteJSON(w, e.Status, body)
}

// WriteJSON encodes payload with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// oneLine collapses whitespace runs (newlines included) and clips to limit runes.
func oneLine(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if runes := []rune(value); len(runes) > limit {
		value = string(runes[:limit])
	}
	return value
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fazaproducts/storefront/internal/platform/httpx"
)

// maxBodySize caps JSON request bodies. Cart and review payloads are a few hundred bytes.
const maxBodySize = 16 << 10

// decodeJSON decodes the request body into dst. On failure it writes the error envelope and
// returns false: 413 payload_too_large past maxBodySize, otherwise 400 invalid_request.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(dst)

	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return true
	case errors.As(err, &tooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body is larger than "+strconv.Itoa(maxBodySize>>10)+" KiB", http.StatusRequestEntityTooLarge))
	case errors.Is(err, io.EOF):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be a JSON object", http.StatusBadRequest))
	}
	return false
}

// productIDParam parses the {id} route parameter. Only positive integers are product ids.
func productIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	return id, err == nil && id > 0
}

// writeProductNotFound sends the 404 used for unknown product ids, with a link back home.
func writeProductNotFound(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "we couldn't find that product", http.StatusNotFound).
		WithDetails(map[string]any{"home": "/"}))
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fazaproducts/storefront/internal/domain"
	"github.com/fazaproducts/storefront/internal/platform/httpx"
	"github.com/fazaproducts/storefront/internal/platform/requestctx"
	"github.com/fazaproducts/storefront/internal/reviews"
)

const (
	noReviewsMessage     = "No reviews yet. Be the first to review this product!"
	reviewsFailedMessage = "Reviews are unavailable right now."

	defaultReviewRateLimit  = 5
	defaultReviewRateWindow = time.Minute
)

// ReviewHandlers exposes the review list and submission endpoints nested under a product.
type ReviewHandlers struct {
	reviews ReviewService
	limiter rateLimiter
}

// ReviewOption customises ReviewHandlers.
type ReviewOption func(*reviewOptions)

type reviewOptions struct {
	limit  int
	window time.Duration
	clock  func() time.Time
}

// WithReviewRateLimit caps submissions per shopper session within window. A zero limit disables
// the cap.
func WithReviewRateLimit(limit int, window time.Duration) ReviewOption {
	return func(o *reviewOptions) {
		o.limit = limit
		o.window = window
	}
}

// WithReviewClock overrides the clock used by the submission rate limiter.
func WithReviewClock(clock func() time.Time) ReviewOption {
	return func(o *reviewOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewReviewHandlers constructs ReviewHandlers.
func NewReviewHandlers(svc ReviewService, opts ...ReviewOption) *ReviewHandlers {
	o := reviewOptions{limit: defaultReviewRateLimit, window: defaultReviewRateWindow, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &ReviewHandlers{
		reviews: svc,
		limiter: newSessionLimiter(o.limit, o.window, o.clock),
	}
}

// Routes registers the review endpoints relative to the catalog group.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products/{id}/reviews", h.listReviews)
	r.Post("/products/{id}/reviews", h.submitReview)
}

type reviewSection struct {
	Reviews      []reviewPayload  `json:"reviews"`
	Aggregate    aggregatePayload `json:"aggregate"`
	Available    bool             `json:"available"`
	EmptyMessage string           `json:"emptyMessage,omitempty"`
}

// loadReviewSection turns a store error into an empty, unavailable section. The only error it
// returns wraps reviews.ErrUnknownProduct.
func loadReviewSection(ctx context.Context, svc ReviewService, productID int64) (reviewSection, error) {
	section := reviewSection{Reviews: []reviewPayload{}}
	if svc == nil {
		section.EmptyMessage = reviewsFailedMessage
		return section, nil
	}
	pr, err := svc.ProductReviews(ctx, productID)
	if errors.Is(err, reviews.ErrUnknownProduct) {
		return section, err
	}
	if err != nil {
		requestctx.Logger(ctx).Warn("reviews unavailable", zap.Int64("product_id", productID), zap.Error(err))
		section.EmptyMessage = reviewsFailedMessage
		return section, nil
	}
	section.Available = true
	section.Reviews = buildReviewList(pr.Reviews)
	section.Aggregate = aggregatePayload{Average: pr.Aggregate.Average, Count: pr.Aggregate.Count}
	if len(section.Reviews) == 0 {
		section.EmptyMessage = noReviewsMessage
	}
	return section, nil
}

func (h *ReviewHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := productIDParam(r)
	if !ok {
		writeProductNotFound(ctx, w)
		return
	}
	section, err := loadReviewSection(ctx, h.reviews, id)
	if err != nil {
		writeProductNotFound(ctx, w)
		return
	}
	writeJSONResponse(w, http.StatusOK, section)
}

type submitReviewRequest struct {
	Name    string          `json:"name"`
	Rating  json.RawMessage `json:"rating"`
	Comment string          `json:"comment"`
}

type submitReviewResponse struct {
	Success bool           `json:"success"`
	Review  *reviewPayload `json:"review,omitempty"`
	Message string         `json:"message,omitempty"`
}

func (h *ReviewHandlers) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}
	id, ok := productIDParam(r)
	if !ok {
		writeProductNotFound(ctx, w)
		return
	}

	var req submitReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rating, ok := parseRequestRating(req.Rating)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("rating_required", "please select a rating between 1 and 5", http.StatusBadRequest))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(requestctx.Session(ctx)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many reviews submitted, try again later", http.StatusTooManyRequests))
		return
	}

	review, err := h.reviews.SubmitReview(ctx, reviews.Submission{
		ProductID: id,
		Name:      req.Name,
		Rating:    rating,
		Comment:   req.Comment,
	})
	if err != nil {
		switch {
		case errors.Is(err, reviews.ErrUnknownProduct):
			writeProductNotFound(ctx, w)
		case errors.Is(err, reviews.ErrInvalidReview):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_review", err.Error(), http.StatusBadRequest))
		default:
			requestctx.Logger(ctx).Warn("review submission failed", zap.Int64("product_id", id), zap.Error(err))
			writeJSONResponse(w, http.StatusServiceUnavailable, submitReviewResponse{
				Success: false,
				Message: "Failed to submit review. Please try again.",
			})
		}
		return
	}

	payload := buildReviewList([]domain.Review{review})[0]
	writeJSONResponse(w, http.StatusCreated, submitReviewResponse{
		Success: true,
		Review:  &payload,
		Message: "Thank you for your review!",
	})
}

// parseRequestRating accepts a JSON number or a numeric string. A missing or null rating fails.
func parseRequestRating(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, false
	}
	return domain.ParseRating(value)
}

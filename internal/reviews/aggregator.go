// Package reviews stores customer reviews and derives per-product rating aggregates.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fazaproducts/storefront/internal/domain"
)

const (
	// DefaultCommentMax is the comment length limit in runes.
	DefaultCommentMax = 500
	// AnonymousName replaces an empty reviewer name.
	AnonymousName = "Anonymous"

	eventReviewCreated = "review.created"
	meterName          = "github.com/fazaproducts/storefront/internal/reviews"
)

var (
	// ErrInvalidReview is returned when a submission fails validation. No store call is made.
	ErrInvalidReview = errors.New("reviews: invalid review")
	// ErrStoreUnavailable is returned when the review store cannot be read or written.
	ErrStoreUnavailable = errors.New("reviews: store unavailable")
	// ErrUnknownProduct reports a product id the catalog does not hold.
	ErrUnknownProduct = errors.New("reviews: unknown product")
)

// Order controls the sequence reviews are returned in.
type Order string

const (
	// OrderNewest sorts by creation time, newest first. Ties keep arrival order.
	OrderNewest Order = "newest"
	// OrderInsertion keeps the order the store returned.
	OrderInsertion Order = "insertion"
)

// Submission is a review as entered by a shopper.
type Submission struct {
	ProductID int64
	Name      string
	// Rating must be in [1,5]; zero means the shopper picked no rating.
	Rating  int
	Comment string
}

// ProductLookup reports whether a product exists.
type ProductLookup interface {
	Contains(id int64) bool
}

// Event describes a review lifecycle change.
type Event struct {
	Type       string    `json:"type"`
	ReviewKey  string    `json:"reviewKey"`
	ProductID  string    `json:"productId"`
	Rating     int       `json:"rating"`
	OccurredAt time.Time `json:"occurredAt"`
}

// EventPublisher delivers review events to downstream consumers.
type EventPublisher interface {
	PublishReviewEvent(ctx context.Context, event Event) error
}

// Deps bundles the inputs of an Aggregator.
type Deps struct {
	Store      Store
	Catalog    ProductLookup
	Publisher  EventPublisher
	Logger     *zap.Logger
	Meter      metric.Meter
	Clock      func() time.Time
	Order      Order
	CommentMax int
}

// Aggregator validates submissions and turns stored records into display-ready reviews.
type Aggregator struct {
	store      Store
	catalog    ProductLookup
	publisher  EventPublisher
	logger     *zap.Logger
	clock      func() time.Time
	order      Order
	commentMax int
	sanitize   func(string) string
	submitted  metric.Int64Counter
}

// ProductReviews is the review list for a product together with its aggregate.
type ProductReviews struct {
	Reviews   []domain.Review
	Aggregate domain.ReviewAggregate
}

// New validates deps and returns an Aggregator.
func New(deps Deps) (*Aggregator, error) {
	if deps.Store == nil {
		return nil, errors.New("reviews: store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	order := deps.Order
	switch order {
	case "":
		order = OrderNewest
	case OrderNewest, OrderInsertion:
	default:
		return nil, fmt.Errorf("reviews: unknown order %q", order)
	}
	commentMax := deps.CommentMax
	if commentMax <= 0 {
		commentMax = DefaultCommentMax
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	submitted, err := meter.Int64Counter("reviews.submissions", metric.WithDescription("Review submissions by outcome"))
	if err != nil {
		logger.Warn("reviews: unable to register submission counter", zap.Error(err))
		submitted = nil
	}
	return &Aggregator{
		store:      deps.Store,
		catalog:    deps.Catalog,
		publisher:  deps.Publisher,
		logger:     logger,
		clock:      clock,
		order:      order,
		commentMax: commentMax,
		sanitize:   sanitizeText,
		submitted:  submitted,
	}, nil
}

// SubmitReview validates sub and appends it to the store. Validation failures wrap
// ErrInvalidReview, an id missing from the catalog wraps ErrUnknownProduct and store failures
// wrap ErrStoreUnavailable. The comment limit applies to the sanitised comment.
func (a *Aggregator) SubmitReview(ctx context.Context, sub Submission) (domain.Review, error) {
	comment := a.sanitize(sub.Comment)
	if err := a.validate(sub, comment); err != nil {
		a.count(ctx, "invalid")
		return domain.Review{}, err
	}

	name := a.sanitize(sub.Name)
	if name == "" {
		name = AnonymousName
	}
	now := a.clock().UTC()
	rec := Record{
		ProductID: strconv.FormatInt(sub.ProductID, 10),
		Name:      name,
		Rating:    sub.Rating,
		Comment:   comment,
		CreatedAt: now.UnixMilli(),
	}

	key, err := a.store.Append(ctx, rec)
	if err != nil {
		a.count(ctx, "failed")
		a.logger.Warn("review submission failed", zap.String("product_id", rec.ProductID), zap.Error(err))
		return domain.Review{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	a.count(ctx, "stored")

	review, _ := normalize(KeyedRecord{Key: key, Record: rec})
	a.emit(ctx, review)
	return review, nil
}

func (a *Aggregator) validate(sub Submission, comment string) error {
	if sub.Rating == 0 {
		return fmt.Errorf("%w: rating is required", ErrInvalidReview)
	}
	if sub.Rating < domain.MinRating || sub.Rating > domain.MaxRating {
		return fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidReview, domain.MinRating, domain.MaxRating)
	}
	if sub.ProductID <= 0 {
		return fmt.Errorf("%w: product id is required", ErrInvalidReview)
	}
	if !a.knownProduct(sub.ProductID) {
		return fmt.Errorf("%w: %d", ErrUnknownProduct, sub.ProductID)
	}
	if n := utf8.RuneCountInString(comment); n > a.commentMax {
		return fmt.Errorf("%w: comment is %d characters, limit is %d", ErrInvalidReview, n, a.commentMax)
	}
	return nil
}

// FetchReviews returns the reviews for productID in the configured order. Records with an
// unreadable rating are skipped.
func (a *Aggregator) FetchReviews(ctx context.Context, productID int64) ([]domain.Review, error) {
	id := strconv.FormatInt(productID, 10)
	records, err := a.store.ListByProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	reviews := make([]domain.Review, 0, len(records))
	for _, rec := range records {
		// productId comparison is by string value.
		if rec.ProductID != id {
			continue
		}
		review, ok := normalize(rec)
		if !ok {
			a.logger.Debug("reviews: skipping record with invalid rating", zap.String("key", rec.Key))
			continue
		}
		reviews = append(reviews, review)
	}

	if a.order == OrderNewest {
		sort.SliceStable(reviews, func(i, j int) bool {
			return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
		})
	}
	return reviews, nil
}

func (a *Aggregator) knownProduct(id int64) bool {
	return a.catalog == nil || a.catalog.Contains(id)
}

// ProductReviews fetches reviews and computes their aggregate. When the store fails the result
// is empty and the error wraps ErrStoreUnavailable, so callers can render an empty state. An id
// missing from the catalog returns ErrUnknownProduct without touching the store.
func (a *Aggregator) ProductReviews(ctx context.Context, productID int64) (ProductReviews, error) {
	if !a.knownProduct(productID) {
		return ProductReviews{Reviews: []domain.Review{}}, fmt.Errorf("%w: %d", ErrUnknownProduct, productID)
	}
	reviews, err := a.FetchReviews(ctx, productID)
	if err != nil {
		a.logger.Warn("review fetch failed; showing no reviews", zap.Int64("product_id", productID), zap.Error(err))
		return ProductReviews{Reviews: []domain.Review{}}, err
	}
	return ProductReviews{Reviews: reviews, Aggregate: ComputeAggregate(reviews)}, nil
}

// ComputeAggregate returns the mean rating rounded to one decimal place and the review count.
// An empty list yields a zero aggregate.
func ComputeAggregate(reviews []domain.Review) domain.ReviewAggregate {
	if len(reviews) == 0 {
		return domain.ReviewAggregate{}
	}
	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	mean := float64(total) / float64(len(reviews))
	return domain.ReviewAggregate{
		Average: math.Round(mean*10) / 10,
		Count:   len(reviews),
	}
}

// normalize converts a stored record to a display review. The date comes from createdAt when
// present and falls back to the legacy date field.
func normalize(rec KeyedRecord) (domain.Review, bool) {
	rating, ok := domain.ParseRating(rec.Rating)
	if !ok {
		return domain.Review{}, false
	}
	review := domain.Review{
		ID:        rec.Key,
		ProductID: rec.ProductID,
		Name:      rec.Name,
		Rating:    rating,
		Comment:   rec.Comment,
		Date:      rec.Date,
	}
	if review.Comment == "" {
		review.Comment = rec.Text
	}
	if rec.CreatedAt > 0 {
		review.CreatedAt = time.UnixMilli(rec.CreatedAt).UTC()
		review.Date = review.CreatedAt.Format(time.DateOnly)
	} else if t, err := time.Parse(time.DateOnly, rec.Date); err == nil {
		review.CreatedAt = t
	}
	return review, true
}

func (a *Aggregator) emit(ctx context.Context, review domain.Review) {
	if a.publisher == nil {
		return
	}
	event := Event{
		Type:       eventReviewCreated,
		ReviewKey:  review.ID,
		ProductID:  review.ProductID,
		Rating:     review.Rating,
		OccurredAt: review.CreatedAt,
	}
	if err := a.publisher.PublishReviewEvent(ctx, event); err != nil {
		a.logger.Warn("review event publish failed", zap.String("review_key", review.ID), zap.Error(err))
	}
}

func (a *Aggregator) count(ctx context.Context, outcome string) {
	if a.submitted == nil {
		return
	}
	a.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

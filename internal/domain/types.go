package domain

import (
	"time"

	"github.com/fazaproducts/storefront/internal/platform/money"
)

// Category enumerates the product groupings used by the storefront.
type Category string

const (
	// CategoryFoodMix groups food mixes.
	CategoryFoodMix Category = "category1"
	// CategoryBeauty groups beauty products.
	CategoryBeauty Category = "category2"
	// CategoryHealthMix groups health mixes.
	CategoryHealthMix Category = "category3"
	// CategoryAll is the filter sentinel matching every category. It is never stored on a product.
	CategoryAll Category = "all"
)

var categoryLabels = map[Category]string{
	CategoryFoodMix:   "Food Mixes",
	CategoryBeauty:    "Beauty Products",
	CategoryHealthMix: "Health Mixes",
}

// ParseCategory returns the category for a stored product value. The "all" sentinel is rejected.
func ParseCategory(value string) (Category, bool) {
	c := Category(value)
	_, ok := categoryLabels[c]
	return c, ok
}

// Label returns the display name, or the raw value for unknown categories.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// SchemaVersion identifies which catalog document layout a product was loaded from.
type SchemaVersion int

const (
	// SchemaExternalReviews products carry "features" and fetch reviews from the review store.
	SchemaExternalReviews SchemaVersion = iota + 1
	// SchemaEmbeddedReviews products carry "ingredients" and/or an inline reviews list.
	SchemaEmbeddedReviews
)

func (v SchemaVersion) String() string {
	switch v {
	case SchemaEmbeddedReviews:
		return "embedded-reviews"
	case SchemaExternalReviews:
		return "external-reviews"
	default:
		return "unknown"
	}
}

// Product is an immutable catalog entry. Prices are whole currency units.
type Product struct {
	ID            int64
	Name          string
	Category      Category
	Description   string
	Price         int64
	OriginalPrice int64
	Images        []string
	BestSeller    bool
	Offer         bool
	Rating        float64
	Features      []string
	Ingredients   []string
	Reviews       []Review
	Schema        SchemaVersion
}

// PrimaryImage returns the first image reference, or "" when there is none.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// HasOriginalPrice reports whether a strike-through price is present.
func (p Product) HasOriginalPrice() bool {
	return p.OriginalPrice > 0
}

// OnOffer reports whether the product is promoted or discounted.
func (p Product) OnOffer() bool {
	return p.Offer || p.OriginalPrice > p.Price
}

// Discount returns the rounded saving percentage against the original price.
func (p Product) Discount() int {
	return money.DiscountPercent(p.Price, p.OriginalPrice)
}

// Highlights returns the feature list, falling back to ingredients for the legacy layout.
func (p Product) Highlights() []string {
	if len(p.Features) > 0 {
		return p.Features
	}
	return p.Ingredients
}

// SchemaVersion reports whether reviews are embedded in the catalog or stored externally.
func (p Product) SchemaVersion() SchemaVersion {
	if p.Schema == 0 {
		return SchemaExternalReviews
	}
	return p.Schema
}

// CartLine is one product row in a cart. Name, price and image are captured on first add.
type CartLine struct {
	ProductID int64
	Name      string
	Price     int64
	Image     string
	Quantity  int
}

// LineTotal is price multiplied by quantity.
func (l CartLine) LineTotal() int64 {
	return l.Price * int64(l.Quantity)
}

// ShippingPolicy waives the flat fee once the subtotal reaches FreeThreshold.
type ShippingPolicy struct {
	FreeThreshold int64
	FlatFee       int64
}

// ShippingFor returns the fee charged for subtotal.
func (p ShippingPolicy) ShippingFor(subtotal int64) int64 {
	if subtotal >= p.FreeThreshold {
		return 0
	}
	return p.FlatFee
}

// CartSummary holds the totals derived from the current cart lines.
type CartSummary struct {
	Subtotal int64
	Shipping int64
	Total    int64
	Items    int
}

// Review rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Review is a write-once customer review.
type Review struct {
	ID        string
	ProductID string
	Name      string
	Rating    int
	Comment   string
	CreatedAt time.Time
	// Date is the calendar day (YYYY-MM-DD) shown to shoppers.
	Date string
}

// ReviewAggregate is the rounded mean rating and the number of reviews.
type ReviewAggregate struct {
	Average float64
	Count   int
}

var ratingLabels = map[int]string{
	1: "Poor - Not satisfied",
	2: "Fair - Below expectations",
	3: "Good - Meets expectations",
	4: "Very Good - Exceeds expectations",
	5: "Excellent - Outstanding!",
}

// RatingLabel describes a star rating for the rating picker.
func RatingLabel(rating int) string {
	if label, ok := ratingLabels[rating]; ok {
		return label
	}
	return "Select your rating"
}

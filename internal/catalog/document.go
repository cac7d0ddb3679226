package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fazaproducts/storefront/internal/domain"
)

// Format identifies the encoding of a catalog document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor guesses the document format from a path, URL or content type.
func FormatFor(location, contentType string) Format {
	lower := strings.ToLower(location)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return FormatYAML
	}
	if strings.Contains(strings.ToLower(contentType), "yaml") {
		return FormatYAML
	}
	return FormatJSON
}

type document struct {
	Products []productRecord `json:"products" yaml:"products"`
}

type productRecord struct {
	ID            int64          `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Category      string         `json:"category" yaml:"category"`
	Description   string         `json:"description" yaml:"description"`
	Price         float64        `json:"price" yaml:"price"`
	OriginalPrice float64        `json:"originalPrice" yaml:"originalPrice"`
	Image         string         `json:"image" yaml:"image"`
	Images        []string       `json:"images" yaml:"images"`
	BestSeller    bool           `json:"isBestSeller" yaml:"isBestSeller"`
	Offer         bool           `json:"isOffer" yaml:"isOffer"`
	Rating        float64        `json:"rating" yaml:"rating"`
	Features      []string       `json:"features" yaml:"features"`
	Ingredients   []string       `json:"ingredients" yaml:"ingredients"`
	Reviews       []reviewRecord `json:"reviews" yaml:"reviews"`
}

type reviewRecord struct {
	Name    string `json:"name" yaml:"name"`
	Rating  any    `json:"rating" yaml:"rating"`
	Date    string `json:"date" yaml:"date"`
	Text    string `json:"text" yaml:"text"`
	Comment string `json:"comment" yaml:"comment"`
}

// Issue describes a catalog entry dropped during validation.
type Issue struct {
	Index  int
	ID     int64
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("product[%d] id=%d: %s", i.Index, i.ID, i.Reason)
}

var errMissingProducts = errors.New("catalog: document has no products key")

// Parse decodes a catalog document and validates each entry. Invalid entries are reported as
// issues and left out; only an undecodable document is an error.
func Parse(data []byte, format Format) ([]domain.Product, []Issue, error) {
	var raw struct {
		Products *[]productRecord `json:"products" yaml:"products"`
	}
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: decode %s: %w", format, err)
	}
	if raw.Products == nil {
		return nil, nil, errMissingProducts
	}
	products, issues := validate(document{Products: *raw.Products})
	return products, issues, nil
}

func validate(doc document) ([]domain.Product, []Issue) {
	products := make([]domain.Product, 0, len(doc.Products))
	seen := make(map[int64]struct{}, len(doc.Products))
	var issues []Issue

	for i, rec := range doc.Products {
		product, reason := rec.toDomain()
		if reason == "" {
			if _, dup := seen[rec.ID]; dup {
				reason = "duplicate id"
			}
		}
		if reason != "" {
			issues = append(issues, Issue{Index: i, ID: rec.ID, Reason: reason})
			continue
		}
		seen[rec.ID] = struct{}{}
		products = append(products, product)
	}
	return products, issues
}

func (r productRecord) toDomain() (domain.Product, string) {
	if r.ID <= 0 {
		return domain.Product{}, "id must be positive"
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return domain.Product{}, "name is required"
	}
	category, ok := domain.ParseCategory(r.Category)
	if !ok {
		return domain.Product{}, fmt.Sprintf("unknown category %q", r.Category)
	}
	if r.Price < 0 || math.IsNaN(r.Price) {
		return domain.Product{}, "price must not be negative"
	}
	price := int64(math.Round(r.Price))
	original := int64(math.Round(r.OriginalPrice))
	if original != 0 && original < price {
		return domain.Product{}, "original price below price"
	}
	if r.Rating < 0 || r.Rating > 5 {
		return domain.Product{}, "rating outside [0,5]"
	}

	images := make([]string, 0, len(r.Images)+1)
	for _, img := range r.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	if img := strings.TrimSpace(r.Image); img != "" && (len(images) == 0 || images[0] != img) {
		images = append([]string{img}, images...)
	}

	schema := domain.SchemaExternalReviews
	if r.Reviews != nil || (len(r.Features) == 0 && len(r.Ingredients) > 0) {
		schema = domain.SchemaEmbeddedReviews
	}

	var reviews []domain.Review
	for _, rr := range r.Reviews {
		rating, ok := domain.ParseRating(rr.Rating)
		if !ok {
			continue
		}
		text := rr.Comment
		if text == "" {
			text = rr.Text
		}
		review := domain.Review{
			ProductID: fmt.Sprint(r.ID),
			Name:      rr.Name,
			Rating:    rating,
			Comment:   text,
			Date:      rr.Date,
		}
		if t, err := time.Parse(time.DateOnly, rr.Date); err == nil {
			review.CreatedAt = t
		}
		reviews = append(reviews, review)
	}

	return domain.Product{
		ID:            r.ID,
		Name:          name,
		Category:      category,
		Description:   strings.TrimSpace(r.Description),
		Price:         price,
		OriginalPrice: original,
		Images:        images,
		BestSeller:    r.BestSeller,
		Offer:         r.Offer,
		Rating:        r.Rating,
		Features:      r.Features,
		Ingredients:   r.Ingredients,
		Reviews:       reviews,
		Schema:        schema,
	}, ""
}

// Package catalog holds the read-only product list loaded once at startup.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fazaproducts/storefront/internal/domain"
)

// DefaultRelatedLimit is the number of related products shown on a detail view.
const DefaultRelatedLimit = 4

// ErrProductNotFound is returned when no product carries the requested id.
var ErrProductNotFound = errors.New("catalog: product not found")

// Store is an immutable, ordered product list. It is safe for concurrent use.
type Store struct {
	products []domain.Product
	index    map[int64]int
}

// New builds a Store from already validated products. Later duplicates of an id are ignored.
func New(products []domain.Product) *Store {
	s := &Store{
		products: make([]domain.Product, 0, len(products)),
		index:    make(map[int64]int, len(products)),
	}
	for _, p := range products {
		if _, dup := s.index[p.ID]; dup {
			continue
		}
		s.index[p.ID] = len(s.products)
		s.products = append(s.products, p)
	}
	return s
}

// Load fetches and validates the catalog from src. On failure it returns an empty Store together
// with the error so callers can keep serving an empty catalog.
func Load(ctx context.Context, src Source, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("source", src.String()))

	data, format, err := src.Fetch(ctx)
	if err != nil {
		logger.Warn("catalog load failed; serving empty catalog", zap.Error(err))
		return New(nil), err
	}
	products, issues, err := Parse(data, format)
	if err != nil {
		logger.Warn("catalog decode failed; serving empty catalog", zap.Error(err))
		return New(nil), err
	}
	for _, issue := range issues {
		logger.Warn("catalog entry skipped",
			zap.Int("index", issue.Index),
			zap.Int64("product_id", issue.ID),
			zap.String("reason", issue.Reason),
		)
	}
	store := New(products)
	logger.Info("catalog loaded", zap.Int("products", store.Len()), zap.Int("skipped", len(issues)))
	return store, nil
}

// Len returns the number of products.
func (s *Store) Len() int { return len(s.products) }

// All returns every product in document order.
func (s *Store) All() []domain.Product {
	return append([]domain.Product(nil), s.products...)
}

// FilterByCategory returns the products whose category equals category exactly, preserving order.
// domain.CategoryAll returns every product.
func (s *Store) FilterByCategory(category domain.Category) []domain.Product {
	if category == domain.CategoryAll {
		return s.All()
	}
	return s.filter(func(p domain.Product) bool { return p.Category == category })
}

// Find returns the product with id.
func (s *Store) Find(id int64) (domain.Product, error) {
	i, ok := s.index[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
	}
	return s.products[i], nil
}

// Contains reports whether id is in the catalog.
func (s *Store) Contains(id int64) bool {
	_, ok := s.index[id]
	return ok
}

// BestSellers returns products flagged as best sellers.
func (s *Store) BestSellers() []domain.Product {
	return s.filter(func(p domain.Product) bool { return p.BestSeller })
}

// Offers returns products that are flagged as offers or priced below their original price.
func (s *Store) Offers() []domain.Product {
	return s.filter(domain.Product.OnOffer)
}

// Related returns up to limit other products from the same category as id. A non-positive limit
// uses DefaultRelatedLimit.
func (s *Store) Related(id int64, limit int) ([]domain.Product, error) {
	product, err := s.Find(id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	related := make([]domain.Product, 0, limit)
	for _, p := range s.products {
		if len(related) == limit {
			break
		}
		if p.ID != id && p.Category == product.Category {
			related = append(related, p)
		}
	}
	return related, nil
}

func (s *Store) filter(keep func(domain.Product) bool) []domain.Product {
	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// Package cart implements the persisted shopping cart.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fazaproducts/storefront/internal/domain"
)

const (
	// DefaultStorageKey is the key a single cart is stored under.
	DefaultStorageKey = "cart"
	// MaxLineQuantity caps the quantity of a single line. Larger quantities are clamped.
	MaxLineQuantity = 99
)

// storedLine is the durable shape of a cart line.
type storedLine struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Image    string `json:"image"`
	Quantity int    `json:"quantity"`
}

// StoreDeps bundles the inputs of a Store.
type StoreDeps struct {
	Storage  Storage
	Key      string
	Shipping domain.ShippingPolicy
	Logger   *zap.Logger
	// Mutations counts persisted mutations by operation. Optional.
	Mutations metric.Int64Counter
}

// Store is one shopper's cart. Every mutation holds the store lock across read, mutate and
// persist, so concurrent requests for the same cart never interleave.
//
// If persisting fails the store logs once, marks itself degraded and keeps working in memory
// for the rest of its lifetime. Mutations never return errors.
type Store struct {
	mu       sync.Mutex
	storage  Storage
	key      string
	shipping domain.ShippingPolicy
	logger   *zap.Logger
	counter  metric.Int64Counter

	lines    []domain.CartLine
	degraded bool
}

// Open rehydrates the cart stored under deps.Key. Missing or corrupt data yields an empty cart.
func Open(ctx context.Context, deps StoreDeps) *Store {
	key := deps.Key
	if key == "" {
		key = DefaultStorageKey
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		storage:  deps.Storage,
		key:      key,
		shipping: deps.Shipping,
		logger:   logger.With(zap.String("cart_key", key)),
		counter:  deps.Mutations,
	}
	if s.storage == nil {
		s.degraded = true
		return s
	}

	data, err := s.storage.Load(ctx, key)
	switch {
	case errors.Is(err, ErrStorageNotFound):
	case err != nil:
		s.logger.Warn("cart load failed; starting empty", zap.Error(err))
	default:
		lines, err := decodeLines(data)
		if err != nil {
			s.logger.Warn("stored cart is corrupt; starting empty", zap.Error(err))
		}
		s.lines = lines
	}
	return s
}

// decodeLines parses stored data, dropping invalid lines and merging duplicate ids. A decode
// error returns no lines.
func decodeLines(data []byte) ([]domain.CartLine, error) {
	var stored []storedLine
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	lines := make([]domain.CartLine, 0, len(stored))
	index := make(map[int64]int, len(stored))
	for _, sl := range stored {
		if sl.ID <= 0 || sl.Quantity <= 0 {
			continue
		}
		if i, ok := index[sl.ID]; ok {
			lines[i].Quantity = clampQuantity(lines[i].Quantity + clampQuantity(sl.Quantity))
			continue
		}
		index[sl.ID] = len(lines)
		lines = append(lines, domain.CartLine{
			ProductID: sl.ID,
			Name:      sl.Name,
			Price:     sl.Price,
			Image:     sl.Image,
			Quantity:  clampQuantity(sl.Quantity),
		})
	}
	return lines, nil
}

func encodeLines(lines []domain.CartLine) ([]byte, error) {
	stored := make([]storedLine, 0, len(lines))
	for _, l := range lines {
		stored = append(stored, storedLine{
			ID:       l.ProductID,
			Name:     l.Name,
			Price:    l.Price,
			Image:    l.Image,
			Quantity: l.Quantity,
		})
	}
	return json.Marshal(stored)
}

// AddItem adds one unit of product, capturing its name, price and first image on first add.
// A line already at MaxLineQuantity is left unchanged.
func (s *Store) AddItem(ctx context.Context, product domain.Product) domain.CartSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.find(product.ID); i >= 0 {
		if s.lines[i].Quantity >= MaxLineQuantity {
			return s.summary()
		}
		s.lines[i].Quantity++
	} else {
		s.lines = append(s.lines, domain.CartLine{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Image:     product.PrimaryImage(),
			Quantity:  1,
		})
	}
	s.persist(ctx, "add")
	return s.summary()
}

// SetQuantityDelta adds delta to the line for productID and removes the line once its quantity
// drops to zero or below. The result is clamped to MaxLineQuantity. Unknown ids are ignored.
func (s *Store) SetQuantityDelta(ctx context.Context, productID int64, delta int) domain.CartSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.find(productID)
	if i < 0 {
		return s.summary()
	}
	delta = max(min(delta, MaxLineQuantity), -MaxLineQuantity)
	s.lines[i].Quantity = min(s.lines[i].Quantity+delta, MaxLineQuantity)
	if s.lines[i].Quantity <= 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
	}
	s.persist(ctx, "update")
	return s.summary()
}

// RemoveItem deletes the line for productID if present.
func (s *Store) RemoveItem(ctx context.Context, productID int64) domain.CartSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.find(productID); i >= 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
		s.persist(ctx, "remove")
	}
	return s.summary()
}

// Summary returns subtotal, shipping and total for the current lines.
func (s *Store) Summary() domain.CartSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary()
}

// BadgeCount is the total quantity across all lines.
func (s *Store) BadgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count()
}

// Lines returns a copy of the lines in insertion order.
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CartLine(nil), s.lines...)
}

// Degraded reports whether the store has stopped persisting.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func clampQuantity(q int) int {
	return min(q, MaxLineQuantity)
}

func (s *Store) find(productID int64) int {
	for i, l := range s.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) count() int {
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

func (s *Store) summary() domain.CartSummary {
	var subtotal int64
	for _, l := range s.lines {
		subtotal += l.LineTotal()
	}
	shipping := s.shipping.ShippingFor(subtotal)
	return domain.CartSummary{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal + shipping,
		Items:    s.count(),
	}
}

// persist must be called with s.mu held.
func (s *Store) persist(ctx context.Context, op string) {
	if s.counter != nil {
		s.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
	if s.degraded {
		return
	}
	data, err := encodeLines(s.lines)
	if err == nil {
		err = s.storage.Save(ctx, s.key, data)
	}
	if err != nil {
		s.degraded = true
		s.logger.Warn("cart storage unavailable; continuing in memory", zap.String("op", op), zap.Error(err))
	}
}

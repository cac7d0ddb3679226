package reviews

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/fazaproducts/storefront/internal/domain"
)

// Collection is the path reviews are stored under.
const Collection = "reviews"

// Record is the stored review shape. Rating is a number on new records; older records may hold a
// numeric string, a date instead of createdAt, or text instead of comment.
type Record struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Rating    any    `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt int64  `json:"createdAt,omitempty"`
	Date      string `json:"date,omitempty"`
	Text      string `json:"text,omitempty"`
}

// KeyedRecord pairs a record with its store-assigned key.
type KeyedRecord struct {
	Key string
	Record
}

// Store is an append-only review store.
type Store interface {
	// Append stores rec under a newly generated key and returns the key.
	Append(ctx context.Context, rec Record) (string, error)
	// ListByProduct returns every record whose productId equals productID, in arrival order.
	ListByProduct(ctx context.Context, productID string) ([]KeyedRecord, error)
}

// MemoryStore keeps reviews in process memory with ULID keys, which sort by arrival.
type MemoryStore struct {
	mu      sync.RWMutex
	records []KeyedRecord
	newKey  func() string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{newKey: func() string { return ulid.Make().String() }}
}

func (m *MemoryStore) Append(_ context.Context, rec Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.newKey()
	m.records = append(m.records, KeyedRecord{Key: key, Record: rec})
	return key, nil
}

func (m *MemoryStore) ListByProduct(_ context.Context, productID string) ([]KeyedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []KeyedRecord
	for _, r := range m.records {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// EmbeddedSource exposes reviews shipped inside the catalog document.
type EmbeddedSource interface {
	EmbeddedReviews(productID string) []Record
}

// EmbeddedStore serves catalog-embedded reviews followed by reviews submitted this process.
type EmbeddedStore struct {
	source  EmbeddedSource
	overlay *MemoryStore
}

// NewEmbeddedStore wraps source with an in-memory overlay for new submissions.
func NewEmbeddedStore(source EmbeddedSource) (*EmbeddedStore, error) {
	if source == nil {
		return nil, errors.New("reviews: embedded source is required")
	}
	return &EmbeddedStore{source: source, overlay: NewMemoryStore()}, nil
}

func (e *EmbeddedStore) Append(ctx context.Context, rec Record) (string, error) {
	return e.overlay.Append(ctx, rec)
}

func (e *EmbeddedStore) ListByProduct(ctx context.Context, productID string) ([]KeyedRecord, error) {
	embedded := e.source.EmbeddedReviews(productID)
	out := make([]KeyedRecord, 0, len(embedded))
	for i, rec := range embedded {
		out = append(out, KeyedRecord{Key: fmt.Sprintf("embedded-%s-%d", productID, i), Record: rec})
	}
	added, err := e.overlay.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return append(out, added...), nil
}

// ProductFinder looks up catalog products.
type ProductFinder interface {
	Find(id int64) (domain.Product, error)
}

type catalogReviews struct {
	finder ProductFinder
}

// CatalogReviews adapts a catalog so its embedded product reviews can back an EmbeddedStore.
func CatalogReviews(finder ProductFinder) EmbeddedSource {
	return catalogReviews{finder: finder}
}

func (c catalogReviews) EmbeddedReviews(productID string) []Record {
	id, err := strconv.ParseInt(productID, 10, 64)
	if err != nil {
		return nil
	}
	product, err := c.finder.Find(id)
	if err != nil {
		return nil
	}
	out := make([]Record, 0, len(product.Reviews))
	for _, r := range product.Reviews {
		out = append(out, Record{
			ProductID: productID,
			Name:      r.Name,
			Rating:    r.Rating,
			Comment:   r.Comment,
			Date:      r.Date,
		})
	}
	return out
}

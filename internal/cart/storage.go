package cart

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fazaproducts/storefront/internal/platform/firestore"
)

// ErrStorageNotFound is returned by Storage.Load when nothing is stored under the key.
var ErrStorageNotFound = errors.New("cart: no stored cart")

// Storage persists serialized carts under string keys.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// MemoryStorage keeps carts in process memory.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, ErrStorageNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

// FileStorage writes one JSON file per key under Dir. Writes go through a temp file and rename
// so a crash never leaves a half-written cart.
type FileStorage struct {
	Dir string
}

// NewFileStorage creates dir if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("cart: create storage dir: %w", err)
	}
	return &FileStorage{Dir: dir}, nil
}

func (f *FileStorage) path(key string) string {
	return filepath.Join(f.Dir, url.QueryEscape(key)+".json")
}

func (f *FileStorage) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrStorageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cart: read %s: %w", key, err)
	}
	return data, nil
}

func (f *FileStorage) Save(_ context.Context, key string, data []byte) error {
	tmp, err := os.CreateTemp(f.Dir, ".cart-*")
	if err != nil {
		return fmt.Errorf("cart: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cart: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cart: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cart: replace %s: %w", key, err)
	}
	return nil
}

// RedisStorage stores each cart as a string value with an optional expiry.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStorage wraps client. A zero ttl keeps carts indefinitely.
func NewRedisStorage(client *redis.Client, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, ttl: ttl}
}

// DialRedis parses a redis:// URL and returns a client for it.
func DialRedis(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("cart: parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (r *RedisStorage) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStorageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cart: redis get %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisStorage) Save(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("cart: redis set %s: %w", key, err)
	}
	return nil
}

type cartDocument struct {
	Payload   string    `firestore:"payload"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// FirestoreStorage keeps one document per cart key.
type FirestoreStorage struct {
	docs  *firestore.Collection[cartDocument]
	clock func() time.Time
}

// NewFirestoreStorage stores carts in collection.
func NewFirestoreStorage(provider *firestore.Provider, collection string) *FirestoreStorage {
	return &FirestoreStorage{
		docs:  firestore.NewCollection[cartDocument](provider, collection),
		clock: time.Now,
	}
}

func (s *FirestoreStorage) Load(ctx context.Context, key string) ([]byte, error) {
	doc, err := s.docs.Get(ctx, key)
	if firestore.IsNotFound(err) {
		return nil, ErrStorageNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc.Data.Payload), nil
}

func (s *FirestoreStorage) Save(ctx context.Context, key string, data []byte) error {
	return s.docs.Set(ctx, key, cartDocument{Payload: string(data), UpdatedAt: s.clock().UTC()})
}

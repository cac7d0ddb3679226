package cart

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fazaproducts/storefront/internal/domain"
)

func TestFileStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "carts")
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)

	_, err = storage.Load(ctx, "cart:abc")
	assert.ErrorIs(t, err, ErrStorageNotFound)

	require.NoError(t, storage.Save(ctx, "cart:abc", []byte(`[{"id":1}]`)))
	require.NoError(t, storage.Save(ctx, "cart:abc", []byte(`[{"id":2}]`)))

	data, err := storage.Load(ctx, "cart:abc")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":2}]`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
	assert.Equal(t, "cart%3Aabc.json", entries[0].Name())
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStorage(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	storage := NewRedisStorage(client, time.Hour)

	_, err := storage.Load(ctx, "cart:s1")
	assert.ErrorIs(t, err, ErrStorageNotFound)

	s := Open(ctx, StoreDeps{Storage: storage, Key: "cart:s1", Shipping: testShipping})
	s.AddItem(ctx, product(7, 1200))

	assert.True(t, mr.Exists("cart:s1"))
	assert.Equal(t, time.Hour, mr.TTL("cart:s1"))

	reloaded := Open(ctx, StoreDeps{Storage: storage, Key: "cart:s1", Shipping: testShipping})
	assert.Equal(t, s.Lines(), reloaded.Lines())
}

func TestRedisOutageDegrades(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	storage := NewRedisStorage(client, 0)
	s := Open(ctx, StoreDeps{Storage: storage, Key: "cart:s2", Shipping: testShipping})

	mr.Close()
	sum := s.AddItem(ctx, product(1, 100))
	assert.Equal(t, int64(100), sum.Subtotal)
	assert.True(t, s.Degraded())
}

func TestDialRedis(t *testing.T) {
	mr, _ := newRedis(t)
	client, err := DialRedis("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	_, err = DialRedis("://bad")
	assert.Error(t, err)
}

func TestManagerKeysAndSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	storage := NewMemoryStorage()
	m, err := NewManager(ManagerDeps{
		Storage:  storage,
		Shipping: domain.ShippingPolicy{FreeThreshold: 50000, FlatFee: 500},
		Clock:    func() time.Time { return now },
	})
	require.NoError(t, err)

	assert.Equal(t, "cart:abc", m.Key("abc"))
	assert.Equal(t, "cart", m.Key(""))

	a := m.Cart(ctx, "abc")
	assert.Same(t, a, m.Cart(ctx, "abc"))
	a.AddItem(ctx, product(1, 100))

	b := m.Cart(ctx, "def")
	assert.Empty(t, b.Lines(), "sessions must not share carts")

	_, err = storage.Load(ctx, "cart:abc")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	m.Cart(ctx, "def")
	assert.Equal(t, 1, m.Sweep(time.Hour))
	assert.Equal(t, 1, m.Active())

	rehydrated := m.Cart(ctx, "abc")
	assert.NotSame(t, a, rehydrated)
	assert.Equal(t, 1, rehydrated.BadgeCount())
}

func TestNewManagerRequiresStorage(t *testing.T) {
	_, err := NewManager(ManagerDeps{})
	assert.Error(t, err)
}

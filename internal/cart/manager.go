package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fazaproducts/storefront/internal/domain"
)

const meterName = "github.com/fazaproducts/storefront/internal/cart"

// ManagerDeps bundles the inputs of a Manager.
type ManagerDeps struct {
	Storage  Storage
	BaseKey  string
	Shipping domain.ShippingPolicy
	Logger   *zap.Logger
	Meter    metric.Meter
	Clock    func() time.Time
}

// Manager hands out one Store per shopper session. Stores stay in memory until Sweep evicts
// them, so a degraded store keeps its in-memory lines for as long as the session is active.
type Manager struct {
	storage  Storage
	baseKey  string
	shipping domain.ShippingPolicy
	logger   *zap.Logger
	counter  metric.Int64Counter
	clock    func() time.Time

	mu    sync.Mutex
	carts map[string]*entry
}

type entry struct {
	store    *Store
	lastUsed time.Time
}

// NewManager validates deps and returns a Manager.
func NewManager(deps ManagerDeps) (*Manager, error) {
	if deps.Storage == nil {
		return nil, errors.New("cart manager: storage is required")
	}
	baseKey := strings.TrimSpace(deps.BaseKey)
	if baseKey == "" {
		baseKey = DefaultStorageKey
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	counter, err := meter.Int64Counter("cart.mutations", metric.WithDescription("Cart mutations by operation"))
	if err != nil {
		logger.Warn("cart: unable to register mutation counter", zap.Error(err))
		counter = nil
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		storage:  deps.Storage,
		baseKey:  baseKey,
		shipping: deps.Shipping,
		logger:   logger,
		counter:  counter,
		clock:    clock,
		carts:    make(map[string]*entry),
	}, nil
}

// Key returns the storage key for session.
func (m *Manager) Key(session string) string {
	if session == "" {
		return m.baseKey
	}
	return m.baseKey + ":" + session
}

// Cart returns the Store for session, rehydrating it from storage on first use.
func (m *Manager) Cart(ctx context.Context, session string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if e, ok := m.carts[session]; ok {
		e.lastUsed = now
		return e.store
	}
	store := Open(ctx, StoreDeps{
		Storage:   m.storage,
		Key:       m.Key(session),
		Shipping:  m.shipping,
		Logger:    m.logger,
		Mutations: m.counter,
	})
	m.carts[session] = &entry{store: store, lastUsed: now}
	return store
}

// Sweep drops stores idle for longer than idle and returns how many were evicted. Evicted carts
// are rehydrated from storage on their next use.
func (m *Manager) Sweep(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock().Add(-idle)
	evicted := 0
	for session, e := range m.carts {
		if e.lastUsed.Before(cutoff) {
			delete(m.carts, session)
			evicted++
		}
	}
	return evicted
}

// Active returns the number of stores held in memory.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.carts)
}

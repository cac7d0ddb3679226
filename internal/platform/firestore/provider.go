// Package firestore wraps the Firestore client used for durable cart storage.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fazaproducts/storefront/internal/platform/config"
)

const (
	defaultDialTimeout = 10 * time.Second
	emulatorHostEnv    = "FIRESTORE_EMULATOR_HOST"

	// Ping reads a document that normally does not exist; NotFound still proves the round trip.
	pingCollection = "_storefront"
	pingDocument   = "ping"
)

// ErrProviderClosed is returned by Client after Close.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// Provider dials the shared Firestore client on first use. Concurrent first callers share one
// dial, and a failed dial is retried by the next caller.
type Provider struct {
	projectID   string
	emulator    string
	dialTimeout time.Duration
	clientOpts  []option.ClientOption

	dial singleflight.Group

	mu     sync.RWMutex
	client *firestore.Client
	closed bool
}

// ProviderOption customises the Provider.
type ProviderOption func(*Provider)

func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.dialTimeout = timeout
		}
	}
}

func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(p *Provider) { p.clientOpts = append(p.clientOpts, opts...) }
}

// NewProvider returns a Provider for cfg. The emulator host falls back to FIRESTORE_EMULATOR_HOST.
func NewProvider(cfg config.FirestoreConfig, opts ...ProviderOption) *Provider {
	p := &Provider{
		projectID:   strings.TrimSpace(cfg.ProjectID),
		emulator:    strings.TrimSpace(cfg.EmulatorHost),
		dialTimeout: defaultDialTimeout,
	}
	if p.emulator == "" {
		p.emulator = strings.TrimSpace(os.Getenv(emulatorHostEnv))
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Client returns the shared client, dialing it if needed.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	p.mu.RLock()
	client, closed := p.client, p.closed
	p.mu.RUnlock()
	switch {
	case closed:
		return nil, ErrProviderClosed
	case client != nil:
		return client, nil
	}

	v, err, _ := p.dial.Do("client", func() (any, error) {
		return p.connect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*firestore.Client), nil
}

func (p *Provider) connect(ctx context.Context) (*firestore.Client, error) {
	if p.projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	opts := append([]option.ClientOption(nil), p.clientOpts...)
	if p.emulator != "" {
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(p.emulator),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	client, err := firestore.NewClient(dialCtx, p.projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client for %s: %w", p.projectID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = client.Close()
		return nil, ErrProviderClosed
	}
	if p.client != nil {
		_ = client.Close()
		return p.client, nil
	}
	p.client = client
	return client, nil
}

// Ping performs one read against Firestore for the readiness probe.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collection(pingCollection).Doc(pingDocument).Get(ctx)
	if err = WrapError("ping", err); err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

// Close releases the client. The provider cannot be reused afterwards.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	client := p.client
	p.client = nil
	if client == nil {
		return nil
	}
	return client.Close()
}

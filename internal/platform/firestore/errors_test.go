package firestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fazaproducts/storefront/internal/platform/config"
)

func TestWrapErrorClassifiesCodes(t *testing.T) {
	notFound := WrapError("carts.get", status.Error(codes.NotFound, "missing"))
	if !IsNotFound(notFound) {
		t.Fatalf("expected not found, got %v", notFound)
	}
	wrapped := fmt.Errorf("cart: %w", notFound)
	if !IsNotFound(wrapped) {
		t.Fatal("expected IsNotFound to see through wrapping")
	}

	unavailable := WrapError("carts.set", status.Error(codes.Unavailable, "down"))
	var fsErr *Error
	if !errors.As(unavailable, &fsErr) || !fsErr.IsUnavailable() {
		t.Fatalf("expected unavailable, got %v", unavailable)
	}
	if fsErr.Error() != "carts.set: rpc error: code = Unavailable desc = down" {
		t.Fatalf("unexpected message %q", fsErr.Error())
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := WrapError("op", context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline passthrough, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.Canceled, "gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestProviderRequiresProject(t *testing.T) {
	p := NewProvider(config.FirestoreConfig{})
	if _, err := p.Client(context.Background()); err == nil {
		t.Fatal("expected project id error")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := p.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}

func TestCollectionRejectsEmptyID(t *testing.T) {
	c := NewCollection[map[string]any](NewProvider(config.FirestoreConfig{ProjectID: "p"}), "carts")
	if err := c.Set(context.Background(), " ", nil); err == nil {
		t.Fatal("expected id error")
	}
}

func TestProviderEmulatorFallsBackToEnv(t *testing.T) {
	t.Setenv(emulatorHostEnv, "localhost:8681")
	if p := NewProvider(config.FirestoreConfig{ProjectID: "faza"}); p.emulator != "localhost:8681" {
		t.Fatalf("expected env emulator host, got %q", p.emulator)
	}
	p := NewProvider(config.FirestoreConfig{ProjectID: "faza", EmulatorHost: "127.0.0.1:9000"})
	if p.emulator != "127.0.0.1:9000" {
		t.Fatalf("config emulator host should win, got %q", p.emulator)
	}
}

package firebase

import (
	"context"
	"testing"

	"github.com/fazaproducts/storefront/internal/platform/config"
)

func TestNewDatabaseRequiresURL(t *testing.T) {
	if _, err := NewDatabase(context.Background(), config.FirebaseConfig{ProjectID: "faza"}); err == nil {
		t.Fatal("expected error when database url is missing")
	}
}

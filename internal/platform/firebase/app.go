package firebase

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"

	"github.com/fazaproducts/storefront/internal/platform/config"
)

// NewDatabase initialises the Firebase Admin SDK and returns a Realtime Database client bound
// to cfg.DatabaseURL.
func NewDatabase(ctx context.Context, cfg config.FirebaseConfig, opts ...option.ClientOption) (*db.Client, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("firebase database url is required")
	}

	clientOpts := append([]option.ClientOption(nil), opts...)
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:   cfg.ProjectID,
		DatabaseURL: cfg.DatabaseURL,
	}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase database client: %w", err)
	}
	return client, nil
}

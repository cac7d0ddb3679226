package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config captures all runtime configuration organised by concern. Each leaf field names its
// environment variable in the env tag and its fallback in the default tag. The "lower" flag
// folds the value to lower case and "secret" marks fields that may hold a secret reference.
type Config struct {
	Server    ServerConfig
	Catalog   CatalogConfig
	Cart      CartConfig
	Reviews   ReviewsConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	PubSub    PubSubConfig
	Secrets   SecretsConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port         string        `env:"STOREFRONT_SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `env:"STOREFRONT_SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"STOREFRONT_SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `env:"STOREFRONT_SERVER_IDLE_TIMEOUT" default:"2m"`
	Environment  string        `env:"STOREFRONT_ENVIRONMENT,lower" default:"local"`
}

// CatalogConfig points at the product document loaded once at startup.
type CatalogConfig struct {
	// Source is a file path, an http(s) URL, a gs://bucket/object URI, or "embedded".
	Source       string        `env:"STOREFRONT_CATALOG_SOURCE" default:"embedded"`
	FetchTimeout time.Duration `env:"STOREFRONT_CATALOG_FETCH_TIMEOUT" default:"10s"`
	RelatedLimit int           `env:"STOREFRONT_CATALOG_RELATED_LIMIT" default:"4"`
}

// CartConfig selects the durable cart storage and the shipping rule.
type CartConfig struct {
	Backend               string        `env:"STOREFRONT_CART_BACKEND,lower" default:"file"`
	StorageKey            string        `env:"STOREFRONT_CART_STORAGE_KEY" default:"cart"`
	FileDir               string        `env:"STOREFRONT_CART_FILE_DIR" default:".storefront/carts"`
	RedisURL              string        `env:"STOREFRONT_CART_REDIS_URL,secret"`
	TTL                   time.Duration `env:"STOREFRONT_CART_TTL"`
	FreeShippingThreshold int64         `env:"STOREFRONT_SHIPPING_FREE_THRESHOLD" default:"50000"`
	ShippingFee           int64         `env:"STOREFRONT_SHIPPING_FLAT_FEE" default:"500"`
	CurrencyLabel         string        `env:"STOREFRONT_CURRENCY_LABEL" default:"Rs."`
}

type ReviewsConfig struct {
	Backend    string `env:"STOREFRONT_REVIEWS_BACKEND,lower" default:"memory"`
	Order      string `env:"STOREFRONT_REVIEWS_ORDER,lower" default:"newest"`
	CommentMax int    `env:"STOREFRONT_REVIEWS_COMMENT_MAX" default:"500"`
}

type FirebaseConfig struct {
	ProjectID       string `env:"STOREFRONT_FIREBASE_PROJECT_ID"`
	DatabaseURL     string `env:"STOREFRONT_FIREBASE_DATABASE_URL,secret"`
	CredentialsFile string `env:"STOREFRONT_FIREBASE_CREDENTIALS_FILE,secret"`
}

type FirestoreConfig struct {
	ProjectID    string `env:"STOREFRONT_FIRESTORE_PROJECT_ID"`
	EmulatorHost string `env:"STOREFRONT_FIRESTORE_EMULATOR_HOST"`
	Collection   string `env:"STOREFRONT_FIRESTORE_CART_COLLECTION" default:"carts"`
}

// PubSubConfig configures review event publishing. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID   string `env:"STOREFRONT_PUBSUB_PROJECT_ID"`
	ReviewTopic string `env:"STOREFRONT_PUBSUB_REVIEW_TOPIC"`
}

type SecretsConfig struct {
	ProjectID    string `env:"STOREFRONT_SECRETS_PROJECT_ID"`
	FallbackFile string `env:"STOREFRONT_SECRETS_FALLBACK_FILE" default:".secrets.local"`
}

type TelemetryConfig struct {
	TraceExporter string `env:"STOREFRONT_TRACE_EXPORTER,lower" default:"none"`
	ProjectID     string `env:"STOREFRONT_TRACE_PROJECT_ID"`
}

// ValidationError lists the fields that were missing, malformed or out of range.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid fields: %s", strings.Join(e.fields, ", "))
}

// Fields returns the offending field paths, such as "Cart.Backend".
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Load builds the configuration. Lookups consult the explicit env map, then the process
// environment, then the .env file, then the default tag. Secret references are resolved
// after every field is read, and validation runs last.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	o := loaderOptions{envFile: ".env", useSystemEnv: true}
	for _, opt := range opts {
		opt(&o)
	}

	src, err := newSource(o)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	b := binder{src: src}
	b.bind(&cfg)
	if len(b.malformed) > 0 {
		return Config{}, &ValidationError{fields: b.malformed}
	}

	inheritProject(&cfg)

	for _, field := range b.secrets {
		resolved, err := resolveSecret(ctx, *field, o.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if invalid := validate(cfg); len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}
	return cfg, nil
}

// inheritProject fills empty project ids from the Firebase project.
func inheritProject(cfg *Config) {
	for _, id := range []*string{
		&cfg.Firestore.ProjectID,
		&cfg.PubSub.ProjectID,
		&cfg.Secrets.ProjectID,
		&cfg.Telemetry.ProjectID,
	} {
		if *id == "" {
			*id = cfg.Firebase.ProjectID
		}
	}
}

func validate(cfg Config) []string {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Catalog.Source != "", "Catalog.Source")
	check(cfg.Catalog.RelatedLimit >= 0, "Catalog.RelatedLimit")

	switch cfg.Cart.Backend {
	case "memory":
	case "file":
		check(cfg.Cart.FileDir != "", "Cart.FileDir")
	case "redis":
		check(cfg.Cart.RedisURL != "", "Cart.RedisURL")
	case "firestore":
		check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	default:
		check(false, "Cart.Backend")
	}
	check(cfg.Cart.StorageKey != "", "Cart.StorageKey")
	check(cfg.Cart.FreeShippingThreshold >= 0, "Cart.FreeShippingThreshold")
	check(cfg.Cart.ShippingFee >= 0, "Cart.ShippingFee")

	switch cfg.Reviews.Backend {
	case "memory", "embedded":
	case "firebase":
		check(cfg.Firebase.DatabaseURL != "", "Firebase.DatabaseURL")
	default:
		check(false, "Reviews.Backend")
	}
	check(cfg.Reviews.Order == "newest" || cfg.Reviews.Order == "insertion", "Reviews.Order")
	check(cfg.Reviews.CommentMax > 0, "Reviews.CommentMax")
	return invalid
}

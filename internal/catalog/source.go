package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed products.json
var embeddedCatalog []byte

const maxDocumentBytes = 8 << 20

// Source yields the raw catalog document.
type Source interface {
	Fetch(ctx context.Context) ([]byte, Format, error)
	String() string
}

// NewSource picks a Source for location: "embedded", an http(s) URL, a gs://bucket/object URI,
// or a local file path.
func NewSource(location string, timeout time.Duration) (Source, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "" || location == "embedded":
		return EmbeddedSource{}, nil
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return NewHTTPSource(location, timeout), nil
	case strings.HasPrefix(location, "gs://"):
		return NewGCSSource(location)
	default:
		return FileSource{Path: location}, nil
	}
}

// EmbeddedSource serves the catalog compiled into the binary.
type EmbeddedSource struct{}

func (EmbeddedSource) Fetch(context.Context) ([]byte, Format, error) {
	return embeddedCatalog, FormatJSON, nil
}

func (EmbeddedSource) String() string { return "embedded" }

// FileSource reads a catalog from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(context.Context) ([]byte, Format, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, "", fmt.Errorf("catalog: read %s: %w", s.Path, err)
	}
	return data, FormatFor(s.Path, ""), nil
}

func (s FileSource) String() string { return s.Path }

// HTTPSource performs a single GET against URL. Non-2xx responses are failures.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource returns an HTTPSource using an instrumented client bounded by timeout.
func NewHTTPSource(rawURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		URL: rawURL,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, Format, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/yaml")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("catalog: fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("catalog: fetch %s: unexpected status %d", s.URL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, "", fmt.Errorf("catalog: read body: %w", err)
	}
	return data, FormatFor(s.URL, resp.Header.Get("Content-Type")), nil
}

func (s *HTTPSource) String() string { return s.URL }

// GCSSource reads a catalog object from Cloud Storage.
type GCSSource struct {
	Bucket string
	Object string

	newClient func(ctx context.Context) (*storage.Client, error)
}

// NewGCSSource parses a gs://bucket/object URI.
func NewGCSSource(uri string) (*GCSSource, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("catalog: invalid gcs uri %q: %w", uri, err)
	}
	object := strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "gs" || u.Host == "" || object == "" {
		return nil, errors.New("catalog: gcs uri must look like gs://bucket/object")
	}
	return &GCSSource{
		Bucket: u.Host,
		Object: object,
		newClient: func(ctx context.Context) (*storage.Client, error) {
			return storage.NewClient(ctx)
		},
	}, nil
}

func (s *GCSSource) Fetch(ctx context.Context) ([]byte, Format, error) {
	client, err := s.newClient(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("catalog: storage client: %w", err)
	}
	defer client.Close()

	reader, err := client.Bucket(s.Bucket).Object(s.Object).NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("catalog: open %s: %w", s, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxDocumentBytes))
	if err != nil {
		return nil, "", fmt.Errorf("catalog: read %s: %w", s, err)
	}
	return data, FormatFor(s.Object, reader.Attrs.ContentType), nil
}

func (s *GCSSource) String() string { return "gs://" + s.Bucket + "/" + s.Object }

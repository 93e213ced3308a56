// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// Config captures the bucket objects are written to.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

// writerFunc opens an object writer; swapped in tests.
type writerFunc func(ctx context.Context, bucket, object string) objectWriter

type objectWriter interface {
	Write(p []byte) (int, error)
	Close() error
	SetContentType(string)
}

type gcsWriter struct {
	*storage.Writer
}

func (w gcsWriter) SetContentType(ct string) { w.ContentType = ct }

// BlobStore writes archived documents and status files to a bucket.
type BlobStore struct {
	open   writerFunc
	bucket string
	prefix string
}

var _ ingest.BlobStore = (*BlobStore)(nil)

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return newWithWriter(func(ctx context.Context, bucket, object string) objectWriter {
		return gcsWriter{client.Bucket(bucket).Object(object).NewWriter(ctx)}
	}, cfg)
}

// Open creates a client from Application Default Credentials and checks the
// bucket is reachable so misconfiguration fails at startup. The returned
// close function releases the client.
func Open(ctx context.Context, cfg Config) (*BlobStore, func() error, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to get GCS bucket %q attributes: %w", cfg.Bucket, err)
	}
	store, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, client.Close, nil
}

func newWithWriter(open writerFunc, cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{open: open, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// PutObject uploads data and returns a gs:// URI. The object is only
// committed when the writer closes cleanly.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("path is required")
	}
	object := strings.TrimPrefix(name, "/")
	if s.prefix != "" {
		object = path.Join(s.prefix, object)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer := s.open(ctx, s.bucket, object)
	if contentType != "" {
		writer.SetContentType(contentType)
	}
	if _, err := writer.Write(data); err != nil {
		// Cancelling the context aborts the upload before Close commits it.
		cancel()
		_ = writer.Close()
		return "", fmt.Errorf("write object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

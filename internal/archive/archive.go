// Package archive keeps a copy of every fetched document in a blob store so
// extraction problems can be replayed against the exact bytes a run saw.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// Archiver writes raw documents under
// <prefix>/<run_id>/<source-slug>/<data_type>-<hash>.<ext>.
type Archiver struct {
	blobs  ingest.BlobStore
	hasher ingest.Hasher
	prefix string
	logger *zap.Logger
}

// New builds an Archiver. prefix may be empty.
func New(blobs ingest.BlobStore, hasher ingest.Hasher, prefix string, logger *zap.Logger) (*Archiver, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		blobs:  blobs,
		hasher: hasher,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("archive"),
	}, nil
}

// Key returns the object name for doc within runID.
func (a *Archiver) Key(runID string, doc ingest.Document) (string, error) {
	digest, err := a.hasher.Hash(doc.Body)
	if err != nil {
		return "", fmt.Errorf("hash document: %w", err)
	}
	name := fmt.Sprintf("%s-%s.%s", doc.DataType, digest, extension(doc.Format))
	return path.Join(a.prefix, runID, Slug(doc.Source), name), nil
}

// Store writes doc and returns the blob URI.
func (a *Archiver) Store(ctx context.Context, runID string, doc ingest.Document) (string, error) {
	key, err := a.Key(runID, doc)
	if err != nil {
		return "", err
	}
	contentType := doc.ContentType
	if contentType == "" {
		contentType = defaultContentType(doc.Format)
	}
	uri, err := a.blobs.PutObject(ctx, key, contentType, doc.Body)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	a.logger.Debug("archived document",
		zap.String("source", doc.Source),
		zap.String("data_type", string(doc.DataType)),
		zap.String("uri", uri),
		zap.Int("bytes", len(doc.Body)),
	)
	return uri, nil
}

// Slug folds accents, lowercases name and replaces every run of other
// characters with a single hyphen.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFD.String(strings.ToLower(name)) {
		switch {
		case unicode.Is(unicode.Mn, r):
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "source"
	}
	return slug
}

func extension(f ingest.Format) string {
	if f == ingest.FormatCSV {
		return "csv"
	}
	return "html"
}

func defaultContentType(f ingest.Format) string {
	if f == ingest.FormatCSV {
		return "text/csv"
	}
	return "text/html; charset=utf-8"
}

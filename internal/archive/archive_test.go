package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/govdata-ingest/internal/hash/sha256"
	"github.com/JakeFAU/govdata-ingest/internal/ingest"
	"github.com/JakeFAU/govdata-ingest/internal/storage/memory"
)

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestStoreWritesKeyedObject(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	a, err := New(blobs, sha256.New(), "/raw/", nil)
	require.NoError(t, err)

	doc := ingest.Document{
		Source:   "Legislative Assembly of Ontario",
		DataType: ingest.DataBills,
		Format:   ingest.FormatHTML,
		Body:     []byte("hello world"),
	}
	uri, err := a.Store(context.Background(), "run-1", doc)
	require.NoError(t, err)

	key := "raw/run-1/legislative-assembly-of-ontario/bills-b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9.html"
	assert.Equal(t, "memory://"+key, uri)
	data, contentType, ok := blobs.Object(key)
	require.True(t, ok)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, "text/html; charset=utf-8", contentType)
}

func TestKeyUsesFormatExtension(t *testing.T) {
	t.Parallel()

	a, err := New(memory.NewBlobStore(), sha256.New(), "", nil)
	require.NoError(t, err)
	key, err := a.Key("run-2", ingest.Document{Source: "Elections Canada", DataType: ingest.DataElections, Format: ingest.FormatCSV})
	require.NoError(t, err)
	assert.Regexp(t, `^run-2/elections-canada/elections-[0-9a-f]{64}\.csv$`, key)
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	a, err := New(failingBlobs{}, sha256.New(), "", nil)
	require.NoError(t, err)
	_, err = a.Store(context.Background(), "run-1", ingest.Document{Source: "x", DataType: ingest.DataBills})
	require.ErrorContains(t, err, "bucket unavailable")

	_, err = New(nil, sha256.New(), "", nil)
	require.Error(t, err)
}

func TestSlug(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"House of Commons", "house-of-commons"},
		{"Assemblée nationale du Québec", "assemblee-nationale-du-quebec"},
		{"  City of Toronto (Council)  ", "city-of-toronto-council"},
		{"", "source"},
		{"---", "source"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.in), tt.in)
	}
}

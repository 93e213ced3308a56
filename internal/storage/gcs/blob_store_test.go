package gcs

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	buf         bytes.Buffer
	contentType string
	writeErr    error
	closeErr    error
	closed      bool
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.buf.Write(p)
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func (w *fakeWriter) SetContentType(ct string) { w.contentType = ct }

func TestPutObject(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	var gotBucket, gotObject string
	store, err := newWithWriter(func(_ context.Context, bucket, object string) objectWriter {
		gotBucket, gotObject = bucket, object
		return w
	}, Config{Bucket: "govdata-raw", Prefix: "/ingest/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "run-1/ola/bills-abc.html", "text/html", []byte("<html/>"))
	require.NoError(t, err)
	assert.Equal(t, "gs://govdata-raw/ingest/run-1/ola/bills-abc.html", uri)
	assert.Equal(t, "govdata-raw", gotBucket)
	assert.Equal(t, "ingest/run-1/ola/bills-abc.html", gotObject)
	assert.Equal(t, "text/html", w.contentType)
	assert.Equal(t, "<html/>", w.buf.String())
	assert.True(t, w.closed)
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	_, err := newWithWriter(nil, Config{})
	require.Error(t, err)

	_, err = New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	writeFails := &fakeWriter{writeErr: errors.New("network down")}
	store, err := newWithWriter(func(context.Context, string, string) objectWriter { return writeFails }, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "a.json", "", []byte("{}"))
	require.ErrorContains(t, err, "network down")
	assert.True(t, writeFails.closed)

	closeFails := &fakeWriter{closeErr: errors.New("precondition failed")}
	store, err = newWithWriter(func(context.Context, string, string) objectWriter { return closeFails }, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "a.json", "", []byte("{}"))
	require.ErrorContains(t, err, "precondition failed")

	_, err = store.PutObject(context.Background(), "", "", nil)
	require.Error(t, err)
}

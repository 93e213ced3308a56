package memory

import (
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/page.html", "text/html", payload)
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://path/page.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored := string(store.data["path/page.html"])
	if stored != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
}

func TestBlobStoreObjectAndValidation(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	if _, err := store.PutObject(context.Background(), "", "text/csv", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := store.PutObject(context.Background(), "raw/run-1/bills.csv", "text/csv", []byte("a,b")); err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	data, contentType, ok := store.Object("raw/run-1/bills.csv")
	if !ok || string(data) != "a,b" || contentType != "text/csv" {
		t.Fatalf("Object() = %q, %q, %v", data, contentType, ok)
	}
	if store.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", store.Len())
	}
}

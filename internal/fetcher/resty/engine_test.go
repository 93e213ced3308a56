package restyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/govdata-ingest/internal/fetcher"
)

func TestDoReturnsStatusAndBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/bills.csv", http.StatusMovedPermanently)
			return
		}
		if r.Header.Get("From") != "ops@example.ca" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("bill_number,title\nC-1,An Act\n"))
	}))
	defer srv.Close()

	e := New(time.Second)
	resp, err := e.Do(context.Background(), fetcher.Request{
		URL:     srv.URL + "/old",
		Headers: http.Header{"From": {"ops@example.ca"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, srv.URL+"/bills.csv", resp.URL)
	require.Equal(t, "text/csv", resp.Headers.Get("Content-Type"))
	require.Contains(t, string(resp.Body), "C-1,An Act")

	resp, err = e.Do(context.Background(), fetcher.Request{URL: srv.URL + "/bills.csv"})
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDoTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(time.Second).Do(context.Background(), fetcher.Request{URL: addr})
	require.Error(t, err)
}

// Package restyfetcher implements fetcher.Doer with go-resty.
package restyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/govdata-ingest/internal/fetcher"
)

// Engine performs single GET attempts with a shared resty client.
type Engine struct {
	client *resty.Client
}

// New builds an Engine. Redirects are followed up to ten hops.
func New(timeout time.Duration) *Engine {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	// Retries are owned by the fetcher wrapper.
	client.SetRetryCount(0)
	return &Engine{client: client}
}

// Client exposes the underlying client for transport customization.
func (e *Engine) Client() *resty.Client { return e.client }

// Do executes one GET. Non-2xx statuses are returned without error.
func (e *Engine) Do(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	r := e.client.R().SetContext(ctx)
	for key, values := range req.Headers {
		if len(values) > 0 {
			r.SetHeader(key, values[0])
		}
	}
	start := time.Now()
	resp, err := r.Get(req.URL)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("resty get %s: %w", req.URL, err)
	}
	finalURL := req.URL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}
	headers := http.Header{}
	if h := resp.Header(); h != nil {
		headers = h.Clone()
	}
	return fetcher.Response{
		URL:        finalURL,
		StatusCode: resp.StatusCode(),
		Headers:    headers,
		Body:       resp.Body(),
		Duration:   time.Since(start),
	}, nil
}

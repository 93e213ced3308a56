// Package robots enforces robots.txt in front of fetch engines that do not
// check it themselves.
package robots

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/govdata-ingest/internal/fetcher"
)

// Enforcer wraps a fetcher.Doer and refuses requests robots.txt disallows.
// Each host's robots.txt is fetched through the wrapped engine once and cached.
type Enforcer struct {
	next   fetcher.Doer
	agent  string
	cache  sync.Map
	logger *zap.Logger
}

var _ fetcher.Doer = (*Enforcer)(nil)

// Wrap builds an Enforcer. agent is matched against robots.txt user-agent groups.
func Wrap(next fetcher.Doer, agent string, logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{next: next, agent: agent, logger: logger.Named("robots")}
}

// Do checks robots.txt for req.URL and delegates when allowed. Refusals wrap
// fetcher.ErrDisallowed so they are never retried.
func (e *Enforcer) Do(ctx context.Context, req fetcher.Request) (fetcher.Response, error) {
	allowed, err := e.Allowed(ctx, req)
	if err != nil {
		return fetcher.Response{URL: req.URL}, err
	}
	if !allowed {
		return fetcher.Response{URL: req.URL}, fmt.Errorf("robots.txt forbids %s: %w", req.URL, fetcher.ErrDisallowed)
	}
	return e.next.Do(ctx, req)
}

// Allowed reports whether robots.txt permits req.URL. An unreachable
// robots.txt allows access; a 5xx answer is returned as a retryable error and
// not cached.
func (e *Enforcer) Allowed(ctx context.Context, req fetcher.Request) (bool, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return false, fmt.Errorf("parse url %q: %w", req.URL, err)
	}
	data, err := e.load(ctx, parsed, req)
	if err != nil {
		return false, err
	}
	if data == nil {
		return true, nil
	}
	target := parsed.EscapedPath()
	if target == "" {
		target = "/"
	}
	return data.TestAgent(target, e.agent), nil
}

func (e *Enforcer) load(ctx context.Context, parsed *url.URL, req fetcher.Request) (*robotstxt.RobotsData, error) {
	hostKey := parsed.Scheme + "://" + parsed.Host
	if cached, ok := e.cache.Load(hostKey); ok {
		data, _ := cached.(*robotstxt.RobotsData)
		return data, nil
	}

	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	resp, err := e.next.Do(ctx, fetcher.Request{URL: robotsURL.String(), Headers: req.Headers, Timeout: req.Timeout})
	if err != nil {
		e.logger.Warn("robots fetch failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return nil, nil
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("robots.txt for %s unavailable: status %d", parsed.Host, resp.StatusCode)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		e.logger.Warn("robots parse failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		e.cache.Store(hostKey, (*robotstxt.RobotsData)(nil))
		return nil, nil
	}
	e.cache.Store(hostKey, data)
	return data, nil
}

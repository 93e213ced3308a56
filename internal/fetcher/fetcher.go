// Package fetcher retrieves source endpoints with identification headers,
// a hard per-attempt timeout and bounded exponential retry.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
	"github.com/JakeFAU/govdata-ingest/internal/metrics"
	"github.com/JakeFAU/govdata-ingest/internal/policy/backoff"
)

// ErrDisallowed marks a response that must not be retried, such as a robots.txt refusal.
var ErrDisallowed = errors.New("fetch disallowed")

var tracer = otel.Tracer("github.com/JakeFAU/govdata-ingest/internal/fetcher")

// Request is one GET attempt.
type Request struct {
	URL     string
	Headers http.Header
	Timeout time.Duration
}

// Response is what an engine observed for one attempt.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// Doer performs exactly one attempt. Non-2xx statuses are returned as responses, not errors.
type Doer interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// Config controls identification and retry behavior.
type Config struct {
	UserAgent string
	From      string
	Timeout   time.Duration
	Retry     backoff.Policy
}

const (
	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,text/csv;q=0.8,*/*;q=0.7"
	acceptLanguageHeader = "en-CA,en;q=0.9,fr-CA;q=0.8"
)

// Headers returns the identification and accept headers sent with every attempt.
func (c Config) Headers() http.Header {
	h := http.Header{}
	if c.UserAgent != "" {
		h.Set("User-Agent", c.UserAgent)
	}
	if c.From != "" {
		h.Set("From", c.From)
	}
	h.Set("Accept", acceptHeader)
	h.Set("Accept-Language", acceptLanguageHeader)
	h.Set("Cache-Control", "no-cache")
	return h
}

// Waiter throttles requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// StatusObserver is implemented by limiters that adapt to server pushback.
type StatusObserver interface {
	Observe(rawURL string, status int)
}

// Promoter decides whether a static response is a JavaScript shell that
// needs the renderer.
type Promoter interface {
	ShouldPromote(resp Response) bool
}

// Fetcher implements ingest.Fetcher over a pluggable engine.
type Fetcher struct {
	cfg      Config
	engine   Doer
	renderer Doer
	promoter Promoter
	limiter  Waiter
	sleeper  backoff.Sleeper
	logger   *zap.Logger
	now      func() time.Time
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithRenderer sets the engine used for sources that require JavaScript rendering.
func WithRenderer(d Doer) Option { return func(f *Fetcher) { f.renderer = d } }

// WithPromoter lets static responses that look unrendered be re-fetched with
// the renderer. It has no effect without WithRenderer.
func WithPromoter(p Promoter) Option { return func(f *Fetcher) { f.promoter = p } }

// WithLimiter enables per-host throttling before each attempt.
func WithLimiter(w Waiter) Option { return func(f *Fetcher) { f.limiter = w } }

// WithSleeper replaces the timer used between attempts.
func WithSleeper(s backoff.Sleeper) Option { return func(f *Fetcher) { f.sleeper = s } }

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option { return func(f *Fetcher) { f.logger = l } }

// New builds a Fetcher. Zero config values fall back to a 30s timeout and the default retry policy.
func New(cfg Config, engine Doer, opts ...Option) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = backoff.Default()
	}
	f := &Fetcher{
		cfg:     cfg,
		engine:  engine,
		sleeper: backoff.TimerSleeper{},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.Named("fetcher")
	return f
}

// Fetch retrieves the endpoint for dataType, retrying failures with exponential backoff.
// Exhausted attempts yield *ingest.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, src ingest.SourceDescriptor, dataType ingest.DataType) (ingest.Document, error) {
	target, err := src.EndpointURL(dataType)
	if err != nil {
		return ingest.Document{}, err
	}
	engine := f.engine
	useRenderer := src.Render && f.renderer != nil
	if useRenderer {
		engine = f.renderer
	}

	ctx, span := tracer.Start(ctx, "fetch")
	span.SetAttributes(
		attribute.String("source", src.Name),
		attribute.String("data_type", string(dataType)),
		attribute.String("url", target),
	)
	defer span.End()

	logger := f.logger.With(zap.String("source", src.Name), zap.String("url", target))
	start := f.now()
	for attempt := 1; ; attempt++ {
		resp, kind, attemptErr := f.attempt(ctx, engine, target)
		metrics.ObserveFetchAttempt(target, outcomeLabel(kind), len(resp.Body))
		if attemptErr == nil {
			if !useRenderer && f.shouldPromote(resp) {
				resp = f.promote(ctx, logger, target, resp)
			}
			span.SetAttributes(attribute.Int("attempts", attempt), attribute.Int("status", resp.StatusCode))
			return ingest.Document{
				Source:      src.Name,
				DataType:    dataType,
				URL:         resp.URL,
				StatusCode:  resp.StatusCode,
				ContentType: resp.Headers.Get("Content-Type"),
				Format:      src.FormatFor(dataType),
				Body:        resp.Body,
				Attempts:    attempt,
				Duration:    f.now().Sub(start),
				FetchedAt:   f.now().UTC(),
				Rendered:    resp.Rendered,
			}, nil
		}

		fetchErr := &ingest.FetchError{
			Kind:       kind,
			Attempts:   attempt,
			StatusCode: resp.StatusCode,
			URL:        target,
			Err:        attemptErr,
		}
		if errors.Is(attemptErr, ErrDisallowed) || !f.cfg.Retry.ShouldRetry(attemptErr, attempt) {
			span.RecordError(fetchErr)
			span.SetStatus(codes.Error, string(kind))
			return ingest.Document{}, fetchErr
		}

		delay := f.cfg.Retry.Delay(attempt)
		logger.Warn("fetch attempt failed",
			zap.Int("attempt", attempt),
			zap.String("kind", string(kind)),
			zap.Int("status", resp.StatusCode),
			zap.Duration("retry_in", delay),
			zap.Error(attemptErr),
		)
		if err := f.sleeper.Pause(ctx, delay); err != nil {
			fetchErr.Err = fmt.Errorf("%w (retry wait aborted: %v)", attemptErr, err)
			span.RecordError(fetchErr)
			span.SetStatus(codes.Error, "retry aborted")
			return ingest.Document{}, fetchErr
		}
	}
}

func (f *Fetcher) shouldPromote(resp Response) bool {
	return f.renderer != nil && f.promoter != nil && f.promoter.ShouldPromote(resp)
}

// promote renders target once; on failure the static response is kept.
func (f *Fetcher) promote(ctx context.Context, logger *zap.Logger, target string, static Response) Response {
	rendered, kind, err := f.attempt(ctx, f.renderer, target)
	metrics.ObserveFetchAttempt(target, outcomeLabel(kind), len(rendered.Body))
	if err != nil {
		logger.Warn("render promotion failed; keeping static body", zap.String("kind", string(kind)), zap.Error(err))
		return static
	}
	logger.Debug("static response promoted to headless render", zap.Int("bytes", len(rendered.Body)))
	rendered.Rendered = true
	return rendered
}

func (f *Fetcher) attempt(ctx context.Context, engine Doer, target string) (Response, ingest.FetchErrorKind, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, target); err != nil {
			return Response{}, classify(err), err
		}
	}
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	resp, err := engine.Do(attemptCtx, Request{URL: target, Headers: f.cfg.Headers(), Timeout: f.cfg.Timeout})
	if fb, ok := f.limiter.(StatusObserver); ok && resp.StatusCode != 0 {
		fb.Observe(target, resp.StatusCode)
	}
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return resp, ingest.FetchTimeout, fmt.Errorf("attempt exceeded %s: %w", f.cfg.Timeout, err)
		}
		return resp, classify(err), err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, ingest.FetchHTTPStatus, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, "", nil
}

func classify(err error) ingest.FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ingest.FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ingest.FetchTimeout
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return ingest.FetchTimeout
	}
	return ingest.FetchNetwork
}

func outcomeLabel(kind ingest.FetchErrorKind) string {
	if kind == "" {
		return "success"
	}
	return string(kind)
}

package collyfetcher

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/govdata-ingest/internal/policy/backoff"
)

// robotsProbePolicy governs robots.txt probes only. Endpoint retries belong
// to fetcher.Fetcher.
var robotsProbePolicy = backoff.Policy{
	MaxAttempts: 4,
	BaseDelay:   250 * time.Millisecond,
	MaxDelay:    time.Second,
}

// robotsTransport sits under the collector. Legislature sites often answer
// robots.txt with a transient 5xx or drop the connection; probes are retried
// and a host that never produces a usable answer is treated as allow-all.
// A 4xx is passed through, which colly reads as allow-all.
type robotsTransport struct {
	base    http.RoundTripper
	policy  backoff.Policy
	sleeper backoff.Sleeper
}

func newRobotsTransport(base http.RoundTripper) *robotsTransport {
	return &robotsTransport{base: base, policy: robotsProbePolicy, sleeper: backoff.TimerSleeper{}}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport: nil request")
	}
	if !isRobotsTxtRequest(req) {
		return t.base.RoundTrip(req) //nolint:wrapcheck // transparent transport
	}
	for attempt := 1; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		probeErr := err
		if probeErr == nil {
			drain(resp)
			probeErr = fmt.Errorf("robots.txt status %d", resp.StatusCode)
		}
		if !t.policy.ShouldRetry(probeErr, attempt) {
			if req.Context().Err() != nil {
				return nil, fmt.Errorf("robots probe: %w", req.Context().Err())
			}
			return allowAllRobots(req), nil
		}
		if err := t.sleeper.Pause(req.Context(), t.policy.Delay(attempt)); err != nil {
			return nil, fmt.Errorf("robots probe backoff: %w", err)
		}
	}
}

func isRobotsTxtRequest(req *http.Request) bool {
	return req.URL != nil && strings.EqualFold(req.URL.Path, "/robots.txt")
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func allowAllRobots(req *http.Request) *http.Response {
	const body = "User-agent: *\nAllow: /"
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Request:       req,
	}
}

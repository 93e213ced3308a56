package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type noSleep struct{}

func (noSleep) Pause(context.Context, time.Duration) error { return nil }

func statusResponse(code int, body string) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestRobotsTransport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		responses []func() (*http.Response, error)
		wantBody  string
		wantCalls int
	}{
		{
			name: "network failures fall back to allow-all",
			responses: []func() (*http.Response, error){
				func() (*http.Response, error) { return nil, errors.New("connection reset") },
			},
			wantBody:  "Allow: /",
			wantCalls: robotsProbePolicy.MaxAttempts,
		},
		{
			name: "server error then real rules",
			responses: []func() (*http.Response, error){
				func() (*http.Response, error) { return statusResponse(http.StatusBadGateway, "oops"), nil },
				func() (*http.Response, error) {
					return statusResponse(http.StatusOK, "User-agent: *\nDisallow: /private"), nil
				},
			},
			wantBody:  "Disallow: /private",
			wantCalls: 2,
		},
		{
			name: "not found passes through",
			responses: []func() (*http.Response, error){
				func() (*http.Response, error) { return statusResponse(http.StatusNotFound, "missing"), nil },
			},
			wantBody:  "missing",
			wantCalls: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			rt := newRobotsTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
				i := calls
				if i >= len(tc.responses) {
					i = len(tc.responses) - 1
				}
				calls++
				return tc.responses[i]()
			}))
			rt.sleeper = noSleep{}

			req, err := http.NewRequest(http.MethodGet, "https://www.ola.org/robots.txt", nil)
			require.NoError(t, err)
			resp, err := rt.RoundTrip(req)
			require.NoError(t, err)
			assert.Contains(t, readBody(t, resp), tc.wantBody)
			assert.Equal(t, tc.wantCalls, calls)
		})
	}
}

func TestRobotsTransportPassesThroughEndpointRequests(t *testing.T) {
	t.Parallel()

	boom := errors.New("refused")
	calls := 0
	rt := newRobotsTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return nil, boom
	}))
	rt.sleeper = noSleep{}

	req, err := http.NewRequest(http.MethodGet, "https://www.ola.org/en/members", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRobotsTransportStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rt := newRobotsTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, r.Context().Err()
	}))
	rt.sleeper = noSleep{}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.ola.org/robots.txt", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.ErrorIs(t, err, context.Canceled)
}

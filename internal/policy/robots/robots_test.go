package robots

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/govdata-ingest/internal/fetcher"
)

type siteDoer struct {
	mu     sync.Mutex
	pages  map[string]fetcher.Response
	errs   map[string]error
	visits map[string]int
}

func newSite() *siteDoer {
	return &siteDoer{pages: map[string]fetcher.Response{}, errs: map[string]error{}, visits: map[string]int{}}
}

func (d *siteDoer) Do(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visits[req.URL]++
	if err := d.errs[req.URL]; err != nil {
		return fetcher.Response{}, err
	}
	if resp, ok := d.pages[req.URL]; ok {
		return resp, nil
	}
	return fetcher.Response{URL: req.URL, StatusCode: http.StatusNotFound}, nil
}

const robotsBody = `User-agent: *
Disallow: /private

User-agent: govdata-ingest
Disallow: /members/search
`

func TestEnforcerHonoursAgentGroup(t *testing.T) {
	t.Parallel()

	site := newSite()
	site.pages["https://www.ola.org/robots.txt"] = fetcher.Response{StatusCode: http.StatusOK, Body: []byte(robotsBody)}
	site.pages["https://www.ola.org/en/members"] = fetcher.Response{StatusCode: http.StatusOK, Body: []byte("ok")}
	e := Wrap(site, "govdata-ingest", nil)

	resp, err := e.Do(context.Background(), fetcher.Request{URL: "https://www.ola.org/en/members"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = e.Do(context.Background(), fetcher.Request{URL: "https://www.ola.org/members/search"})
	require.ErrorIs(t, err, fetcher.ErrDisallowed)

	assert.Equal(t, 1, site.visits["https://www.ola.org/robots.txt"], "robots.txt is cached per host")
	assert.Zero(t, site.visits["https://www.ola.org/members/search"])
}

func TestEnforcerAllowsWhenRobotsMissingOrUnreachable(t *testing.T) {
	t.Parallel()

	site := newSite()
	site.pages["https://www.toronto.ca/council"] = fetcher.Response{StatusCode: http.StatusOK}
	site.errs["https://www.ottawa.ca/robots.txt"] = errors.New("connection refused")
	site.pages["https://www.ottawa.ca/council"] = fetcher.Response{StatusCode: http.StatusOK}
	e := Wrap(site, "govdata-ingest", nil)

	for _, u := range []string{"https://www.toronto.ca/council", "https://www.ottawa.ca/council"} {
		resp, err := e.Do(context.Background(), fetcher.Request{URL: u})
		require.NoError(t, err, u)
		assert.Equal(t, http.StatusOK, resp.StatusCode, u)
	}
}

func TestEnforcerTreatsServerErrorAsRetryable(t *testing.T) {
	t.Parallel()

	site := newSite()
	site.pages["https://www.parl.ca/robots.txt"] = fetcher.Response{StatusCode: http.StatusServiceUnavailable}
	e := Wrap(site, "govdata-ingest", nil)

	_, err := e.Do(context.Background(), fetcher.Request{URL: "https://www.parl.ca/legisinfo/en/bills"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, fetcher.ErrDisallowed)

	site.pages["https://www.parl.ca/robots.txt"] = fetcher.Response{StatusCode: http.StatusOK, Body: []byte("User-agent: *\nAllow: /\n")}
	site.pages["https://www.parl.ca/legisinfo/en/bills"] = fetcher.Response{StatusCode: http.StatusOK}
	_, err = e.Do(context.Background(), fetcher.Request{URL: "https://www.parl.ca/legisinfo/en/bills"})
	require.NoError(t, err, "a 5xx robots answer is not cached")
}

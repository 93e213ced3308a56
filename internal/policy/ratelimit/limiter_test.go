package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestLimiterWaitThrottlesSameHost(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1: the second call waits roughly 100ms.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.ola.org/en/members"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.ola.org/en/bills"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterIsolatesHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.ca/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://B.example.ca/1"))
	assert.Less(t, time.Since(start), 10*time.Millisecond, "host b blocked by host a")
	assert.Equal(t, 2, l.Hosts())
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 20 {
		require.NoError(t, l.Wait(ctx, "https://c.example.ca/"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	l.Observe("https://c.example.ca/", http.StatusTooManyRequests)
	assert.Equal(t, rate.Inf, l.Rate("https://c.example.ca/"))
}

func TestLimiterCanceledContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.001, DefaultBurst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Wait(ctx, "https://d.example.ca/"))
	cancel()
	require.Error(t, l.Wait(ctx, "https://d.example.ca/"))
}

func TestLimiterObserveAdaptsRate(t *testing.T) {
	t.Parallel()

	const target = "https://www.assembly.ab.ca/members"
	l := New(Config{DefaultRPS: 8, DefaultBurst: 1, MinRPS: 2})

	l.Observe(target, http.StatusTooManyRequests)
	assert.Equal(t, rate.Limit(4), l.Rate(target))
	l.Observe(target, http.StatusServiceUnavailable)
	l.Observe(target, http.StatusServiceUnavailable)
	assert.Equal(t, rate.Limit(2), l.Rate(target), "floor holds")

	l.Observe(target, http.StatusNotFound)
	assert.Equal(t, rate.Limit(2), l.Rate(target), "other statuses leave the rate alone")

	l.Observe(target, http.StatusOK)
	assert.Equal(t, rate.Limit(2.5), l.Rate(target))
	for range 10 {
		l.Observe(target, http.StatusOK)
	}
	assert.Equal(t, rate.Limit(8), l.Rate(target), "ceiling holds")
	assert.Equal(t, rate.Limit(8), l.Rate("https://other.example.ca/"), "hosts adapt independently")
}

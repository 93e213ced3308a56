// Package backoff implements exponential retry timing for endpoint fetches.
package backoff

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// Policy computes retry decisions and delays. The zero value never retries.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// JitterFraction adds up to this fraction of the delay at random.
	JitterFraction float64
}

// Default mirrors the fetch defaults: 5 attempts from 1s, capped at 30s.
func Default() Policy {
	return Policy{
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.1,
	}
}

// ShouldRetry reports whether another attempt may follow attempt (1-based).
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxAttempts {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Delay returns the wait after attempt (1-based): BaseDelay * 2^(attempt-1),
// capped at MaxDelay, plus optional jitter.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	base := time.Duration(delay)
	if p.JitterFraction <= 0 {
		return base
	}
	return base + randomJitter(time.Duration(delay*p.JitterFraction))
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Sleeper waits out retry and politeness delays.
type Sleeper interface {
	Pause(ctx context.Context, d time.Duration) error
}

// TimerSleeper pauses on a timer and returns early when ctx ends.
type TimerSleeper struct{}

// Pause blocks for d or until ctx is done.
func (TimerSleeper) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

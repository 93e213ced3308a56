// Package system provides the wall clock and the timer-backed politeness pause.
package system

import (
	"context"
	"time"
)

// Clock implements ingest.Clock and ingest.Pauser with real time.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Pause blocks for d or until ctx is done, returning ctx.Err() in that case.
func (Clock) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Package clocksync estimates the offset between a local clock and the
// server clock so the lobby countdown cannot be bypassed by tampering with
// the local clock. The estimate is advisory: it drives navigation and the
// countdown display, while the server clock stays authoritative for
// completion and scoring.
package clocksync

import (
	"context"
	"sync"
	"time"

	"proctor-quiz-service/internal/domain"
)

// Phase is where an exam window stands relative to a given instant.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseActive
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseActive:
		return "active"
	case PhaseExpired:
		return "expired"
	}
	return "unknown"
}

// PhaseOf places now within the session window.
func PhaseOf(session domain.Session, now time.Time) Phase {
	if !now.Before(session.EndTime()) {
		return PhaseExpired
	}
	if !now.Before(session.StartTime) {
		return PhaseActive
	}
	return PhaseWaiting
}

// Estimator holds the latest clock-offset sample.
//
// The protocol: record local t0, request server time, receive server
// timestamp S, record local t1 on response. The server clock at t1 is
// estimated as S + (t1-t0)/2, so offset = S + latency/2 - t1.
type Estimator struct {
	mu      sync.RWMutex
	offset  time.Duration
	sampled bool
}

// Sample folds in one round trip. A transient sync failure should simply
// skip the call; the previous offset (or zero) keeps working.
func (e *Estimator) Sample(t0 time.Time, serverTime time.Time, t1 time.Time) {
	latency := t1.Sub(t0)
	if latency < 0 {
		latency = 0
	}
	estimate := serverTime.Add(latency / 2)

	e.mu.Lock()
	e.offset = estimate.Sub(t1)
	e.sampled = true
	e.mu.Unlock()
}

// Offset returns the current estimate and whether any sample was taken.
func (e *Estimator) Offset() (time.Duration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.offset, e.sampled
}

// Now converts a local instant to estimated server time.
func (e *Estimator) Now(local time.Time) time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return local.Add(e.offset)
}

const (
	minTick = 100 * time.Millisecond
	maxTick = time.Second
)

// WaitForStart blocks until the session start crosses in estimated server
// time, polling at the given interval (clamped to 100ms..1s). Remaining time
// is recomputed from the offset on every tick rather than accumulated, so
// the countdown does not drift. Returns ctx.Err() if cancelled first.
func WaitForStart(ctx context.Context, session domain.Session, est *Estimator, tick time.Duration, localNow func() time.Time) error {
	if localNow == nil {
		localNow = time.Now
	}
	if tick < minTick {
		tick = minTick
	}
	if tick > maxTick {
		tick = maxTick
	}

	if !est.Now(localNow()).Before(session.StartTime) {
		return nil
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !est.Now(localNow()).Before(session.StartTime) {
				return nil
			}
		}
	}
}

// Remaining reports time left until the session start in estimated server
// time, floored at zero.
func Remaining(session domain.Session, est *Estimator, local time.Time) time.Duration {
	remaining := session.StartTime.Sub(est.Now(local))
	if remaining < 0 {
		return 0
	}
	return remaining
}

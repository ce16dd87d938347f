// Package budget tracks how many Content API requests a user has issued
// inside the current rate-limit window.
//
// Every remote call made on behalf of a user (page listings and single
// document fetches alike) must be routed through Tracker.Track so that all
// call sites draw from the same quota.
package budget

import (
	"errors"
	"time"
)

// ErrBudgetExceeded is returned by Track when the window has no requests left.
// It is expected steady-state behaviour, not a failure.
var ErrBudgetExceeded = errors.New("request budget exceeded for current window")

// Tracker is the request budget of a single user for a single sync run.
// It is not safe for concurrent use; one user's sync is sequential.
type Tracker struct {
	limit     int
	window    time.Duration
	startedAt time.Time
	count     int
	issued    int
}

// New builds a tracker from the persisted window anchor and count, resetting
// the window if it has expired at now.
func New(limit int, window time.Duration, windowStartedAt *time.Time, windowRequestCount int, now time.Time) *Tracker {
	startedAt, count := Normalize(windowStartedAt, windowRequestCount, now, window)
	return &Tracker{
		limit:     limit,
		window:    window,
		startedAt: startedAt,
		count:     count,
	}
}

// Normalize returns the window anchor and count that are valid at now. A
// missing or expired window (now - start >= window) is replaced by a fresh
// one starting at now with a zero count.
func Normalize(windowStartedAt *time.Time, windowRequestCount int, now time.Time, window time.Duration) (time.Time, int) {
	if windowStartedAt == nil || now.Sub(*windowStartedAt) >= window {
		return now, 0
	}
	if windowRequestCount < 0 {
		windowRequestCount = 0
	}
	return *windowStartedAt, windowRequestCount
}

// CanRequest reports whether one more request fits in the window.
func (t *Tracker) CanRequest() bool {
	return t.count < t.limit
}

// Remaining returns how many requests are left in the window.
func (t *Tracker) Remaining() int {
	return max(t.limit-t.count, 0)
}

// Track charges one request and runs fn. When the budget is exhausted fn is
// not called and ErrBudgetExceeded is returned. The request is charged before
// fn runs, so the count reflects requests issued even when fn fails.
func (t *Tracker) Track(fn func() error) error {
	if !t.CanRequest() {
		return ErrBudgetExceeded
	}
	t.count++
	t.issued++
	return fn()
}

// Do is Track for calls that return a value.
func Do[T any](t *Tracker, fn func() (T, error)) (T, error) {
	var result T
	err := t.Track(func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

// WindowStartedAt returns the anchor of the current window.
func (t *Tracker) WindowStartedAt() time.Time {
	return t.startedAt
}

// Snapshot returns the window anchor and count to persist.
func (t *Tracker) Snapshot() (time.Time, int) {
	return t.startedAt, t.count
}

// Count returns the number of requests charged to the current window.
func (t *Tracker) Count() int {
	return t.count
}

// Issued returns the number of requests charged through this tracker.
func (t *Tracker) Issued() int {
	return t.issued
}

// WindowEnd returns the instant the current window expires.
func (t *Tracker) WindowEnd() time.Time {
	return t.startedAt.Add(t.window)
}

// Limit returns the per-window request cap.
func (t *Tracker) Limit() int {
	return t.limit
}

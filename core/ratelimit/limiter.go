// Package ratelimit throttles chats that flood the bot with updates.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrLimited = errors.New("rate limited")

type record struct {
	hits     []time.Time
	lockedAt time.Time
}

// Limiter counts updates per chat ID over a sliding window. A chat that goes
// over the limit is rejected until the window frees up, or for the lockout
// duration when one is set.
type Limiter struct {
	mu        sync.Mutex
	max       int
	window    time.Duration
	lockout   time.Duration
	records   map[int64]*record
	lastSweep time.Time
	now       func() time.Time
}

// New creates a limiter allowing max updates per window for each chat. It
// returns nil when max or window is not positive, which disables limiting.
func New(max int, window, lockout time.Duration) *Limiter {
	if max <= 0 || window <= 0 {
		return nil
	}
	return &Limiter{
		max:     max,
		window:  window,
		lockout: lockout,
		records: make(map[int64]*record),
		now:     time.Now,
	}
}

// Allow records an update for the chat and returns ErrLimited when it should be
// dropped. Rejected updates do not count against the window. A nil Limiter
// allows everything.
func (l *Limiter) Allow(chatID int64) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	r := l.records[chatID]
	if r == nil {
		r = &record{}
		l.records[chatID] = r
	}

	if !r.lockedAt.IsZero() {
		if elapsed := now.Sub(r.lockedAt); elapsed < l.lockout {
			return fmt.Errorf("%w: chat %d, try again in %s", ErrLimited, chatID, (l.lockout - elapsed).Truncate(time.Second))
		}
		// Lockout expired.
		r.lockedAt = time.Time{}
		r.hits = r.hits[:0]
	}

	cutoff := now.Add(-l.window)
	fresh := r.hits[:0]
	for _, t := range r.hits {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	r.hits = fresh

	if len(r.hits) >= l.max {
		if l.lockout > 0 {
			r.lockedAt = now
		}
		return fmt.Errorf("%w: chat %d sent more than %d updates in %s", ErrLimited, chatID, l.max, l.window)
	}
	r.hits = append(r.hits, now)
	return nil
}

// Reset clears the state of a chat.
func (l *Limiter) Reset(chatID int64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, chatID)
}

// Tracked returns the number of chats with recorded state.
func (l *Limiter) Tracked() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// sweep forgets chats that have been quiet for a full window and are not
// locked out. It runs at most once per window.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-l.window)
	for id, r := range l.records {
		locked := !r.lockedAt.IsZero() && now.Sub(r.lockedAt) < l.lockout
		if !locked && (len(r.hits) == 0 || !r.hits[len(r.hits)-1].After(cutoff)) {
			delete(l.records, id)
		}
	}
}

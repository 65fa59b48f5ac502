package core

import (
	"context"
	"sync"
	"time"
)

// Session is the mailbox of one chat. It holds updates that arrived while a handler
// invocation was running and guarantees at most one invocation per chat at a time.
//
// A single mutex guards the queue, the active invocation and the eviction flag, so
// "is an invocation running" and "enqueue or start one" form one decision.
type Session struct {
	chatID int64

	mu         sync.Mutex
	queue      []Update
	active     string // invocation id; empty when idle
	evicted    bool
	lastActive time.Time

	// wake carries at most one pending signal; waiters re-check the queue under mu.
	wake chan struct{}
}

func newSession(chatID int64, now time.Time) *Session {
	return &Session{
		chatID:     chatID,
		lastActive: now,
		wake:       make(chan struct{}, 1),
	}
}

// ChatID returns the chat identity the session belongs to.
func (s *Session) ChatID() int64 { return s.chatID }

// Active reports whether a handler invocation is running for the chat.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != ""
}

// Pending returns the number of queued updates.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// offer delivers u to the running invocation, or claims the session for a new
// invocation with id when the chat is idle. It returns started=true in the latter
// case. ok=false means the session was evicted and the caller must look it up again.
func (s *Session) offer(u Update, id string, now time.Time) (started, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.evicted {
		return false, false
	}
	s.lastActive = now
	if s.active != "" {
		s.queue = append(s.queue, u)
		s.signal()
		return false, true
	}
	s.active = id
	return true, true
}

// finish is called when invocation id returns. If updates are still queued, the
// oldest one is handed back together with a fresh invocation id so the caller can
// start the next invocation without the session ever looking idle.
func (s *Session) finish(id, nextID string, now time.Time) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != id {
		return Update{}, false
	}
	s.lastActive = now
	if len(s.queue) == 0 {
		s.active = ""
		s.drainSignal()
		return Update{}, false
	}
	u := s.pop()
	s.active = nextID
	return u, true
}

// release marks the session idle without touching the mailbox. Used when no new
// invocation may be started any more.
func (s *Session) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == id {
		s.active = ""
	}
}

// next blocks until an update is queued or ctx is done.
func (s *Session) next(ctx context.Context) (Update, error) {
	for {
		// A done context wins over a queued update, which stays in the mailbox.
		if err := ctx.Err(); err != nil {
			return Update{}, err
		}
		s.mu.Lock()
		if len(s.queue) > 0 {
			u := s.pop()
			s.mu.Unlock()
			return u, nil
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-ctx.Done():
			return Update{}, ctx.Err()
		}
	}
}

// tryEvict marks the session evicted if it is idle with an empty mailbox.
func (s *Session) tryEvict() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != "" || len(s.queue) > 0 {
		return false
	}
	s.evicted = true
	return true
}

// pop removes the oldest update. Must be called with mu held.
func (s *Session) pop() Update {
	u := s.queue[0]
	s.queue[0] = Update{}
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return u
}

// signal wakes a waiter without blocking. Must be called with mu held.
func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drainSignal drops a stale wake-up. Must be called with mu held.
func (s *Session) drainSignal() {
	select {
	case <-s.wake:
	default:
	}
}

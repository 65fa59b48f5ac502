package core

import (
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Registry maps chat ids to their Session. Sessions are created lazily.
//
// With a non-zero limit the registry keeps at most limit sessions, evicting the
// least recently used ones that are idle with an empty mailbox. Sessions with a
// running invocation are never evicted, so the limit is soft.
type Registry struct {
	mu       sync.Mutex
	sessions *simplelru.LRU[int64, *Session]
	limit    int
	now      func() time.Time
	onEvict  func(chatID int64)
}

// NewRegistry creates an empty registry. limit <= 0 disables eviction.
func NewRegistry(limit int) *Registry {
	// Capacity is unbounded here; eviction is decided by evictIdleLocked so that
	// busy sessions are skipped.
	sessions, err := simplelru.NewLRU[int64, *Session](math.MaxInt, nil)
	if err != nil {
		panic(err)
	}
	return &Registry{
		sessions: sessions,
		limit:    limit,
		now:      time.Now,
	}
}

// GetOrCreate returns the session for chatID, creating it on first use.
func (r *Registry) GetOrCreate(chatID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions.Get(chatID); ok {
		return s
	}
	s := newSession(chatID, r.now())
	r.sessions.Add(chatID, s)
	if r.limit > 0 && r.sessions.Len() > r.limit {
		r.evictIdleLocked(chatID)
	}
	return s
}

// Get returns the session for chatID without creating it or refreshing its recency.
func (r *Registry) Get(chatID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.Peek(chatID)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.Len()
}

// evictIdleLocked drops idle sessions, oldest first, until the registry is back at
// its limit. keep is the session being created and is never a candidate.
// Must be called with mu held.
func (r *Registry) evictIdleLocked(keep int64) {
	for _, chatID := range r.sessions.Keys() {
		if r.sessions.Len() <= r.limit {
			return
		}
		if chatID == keep {
			continue
		}
		s, ok := r.sessions.Peek(chatID)
		if !ok || !s.tryEvict() {
			continue
		}
		r.sessions.Remove(chatID)
		if r.onEvict != nil {
			r.onEvict(chatID)
		}
	}
}

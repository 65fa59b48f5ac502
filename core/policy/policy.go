// Package policy decides whether an inbound update is processed at all.
package policy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jdelaire/turnbot/core/ratelimit"
)

const defaultDedupSize = 10000

var (
	ErrUnauthorizedChat = errors.New("unauthorized chat")
	ErrStale            = errors.New("stale update")
	ErrDuplicate        = errors.New("duplicate update")
)

// Policy authorizes inbound updates. It checks an optional chat allowlist and an
// optional freshness window, then deduplicates update_ids and applies an
// optional per-chat rate limit. Webhook deliveries are retried by Telegram, so
// the same update can arrive more than once.
type Policy struct {
	mu        sync.Mutex
	allowed   map[int64]bool
	freshness time.Duration
	seen      *lru.Cache[int64, struct{}]
	limiter   *ratelimit.Limiter
	now       func() time.Time
}

// Option configures a Policy.
type Option func(*Policy)

// WithAllowedChats restricts processing to the given chat ids. An empty list
// allows every chat.
func WithAllowedChats(chatIDs ...int64) Option {
	return func(p *Policy) {
		for _, id := range chatIDs {
			p.allowed[id] = true
		}
	}
}

// WithFreshness rejects updates older than window. Zero disables the check.
func WithFreshness(window time.Duration) Option {
	return func(p *Policy) { p.freshness = window }
}

// WithDedupSize sets how many recent update ids are remembered.
func WithDedupSize(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.seen, _ = lru.New[int64, struct{}](n)
		}
	}
}

// WithRateLimit drops updates from chats the limiter rejects. A nil limiter
// disables the check.
func WithRateLimit(l *ratelimit.Limiter) Option {
	return func(p *Policy) { p.limiter = l }
}

// New creates a Policy.
func New(opts ...Option) *Policy {
	seen, _ := lru.New[int64, struct{}](defaultDedupSize)
	p := &Policy{
		allowed: make(map[int64]bool),
		seen:    seen,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Authorize checks whether an update should be processed. A zero timestamp skips
// the freshness check, since not every update carries a date.
func (p *Policy) Authorize(chatID, updateID int64, timestamp time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.allowed) > 0 && !p.allowed[chatID] {
		return fmt.Errorf("%w: %d", ErrUnauthorizedChat, chatID)
	}

	if p.freshness > 0 && !timestamp.IsZero() {
		if age := p.now().Sub(timestamp); age > p.freshness {
			return fmt.Errorf("%w: %v old", ErrStale, age.Truncate(time.Second))
		}
	}

	if found, _ := p.seen.ContainsOrAdd(updateID, struct{}{}); found {
		return fmt.Errorf("%w: %d", ErrDuplicate, updateID)
	}
	return p.limiter.Allow(chatID)
}

// Reason maps an Authorize error to a short label for metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorizedChat):
		return "unauthorized"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ratelimit.ErrLimited):
		return "rate_limited"
	default:
		return "other"
	}
}

// Package telegram_receiver long-polls the Bot API and hands every update to a
// handler in arrival order.
package telegram_receiver

import (
	"context"
	"log/slog"
	"time"

	"github.com/jdelaire/turnbot/core/tg"
)

const (
	defaultPollTimeout  = 30 * time.Second
	defaultErrorBackoff = 5 * time.Second
)

// UpdatesFetcher fetches a batch of updates starting at offset.
type UpdatesFetcher interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tg.Update, error)
}

// Receiver long-polls Telegram for updates.
type Receiver struct {
	fetcher      UpdatesFetcher
	handler      func(tg.Update)
	logger       *slog.Logger
	pollTimeout  time.Duration
	errorBackoff time.Duration
	onError      func(error)
	offset       int64
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithPollTimeout sets the long poll timeout sent to getUpdates.
func WithPollTimeout(d time.Duration) Option {
	return func(r *Receiver) { r.pollTimeout = d }
}

// WithErrorBackoff sets the pause after a failed poll.
func WithErrorBackoff(d time.Duration) Option {
	return func(r *Receiver) { r.errorBackoff = d }
}

// WithOnError registers a callback for failed polls. Polling continues.
func WithOnError(fn func(error)) Option {
	return func(r *Receiver) { r.onError = fn }
}

// WithOffset starts polling at the given update id.
func WithOffset(offset int64) Option {
	return func(r *Receiver) { r.offset = offset }
}

// New creates a Telegram receiver. handler must not block; the dispatcher's
// HandleUpdate satisfies this.
func New(fetcher UpdatesFetcher, handler func(tg.Update), logger *slog.Logger, opts ...Option) *Receiver {
	r := &Receiver{
		fetcher:      fetcher,
		handler:      handler,
		logger:       logger,
		pollTimeout:  defaultPollTimeout,
		errorBackoff: defaultErrorBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Offset returns the next update id to request.
func (r *Receiver) Offset() int64 { return r.offset }

// Start begins the long-poll loop. Blocks until ctx is cancelled.
func (r *Receiver) Start(ctx context.Context) error {
	r.logger.Info("telegram receiver started", "offset", r.offset)
	for {
		if err := ctx.Err(); err != nil {
			r.logger.Info("telegram receiver stopped")
			return nil
		}

		updates, err := r.fetcher.GetUpdates(ctx, r.offset, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("telegram receiver stopped")
				return nil
			}
			r.logger.Error("poll error", "error", err)
			if r.onError != nil {
				r.onError(err)
			}
			select {
			case <-time.After(r.errorBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		for _, u := range updates {
			// Telegram may resend an update when the previous ack was lost.
			if u.UpdateID < r.offset {
				continue
			}
			r.offset = u.UpdateID + 1
			r.handler(u)
		}
	}
}

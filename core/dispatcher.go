package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jdelaire/turnbot/core/policy"
	"github.com/jdelaire/turnbot/core/tg"
)

const (
	tracerName = "github.com/jdelaire/turnbot/core"

	entryCommand = "command"
	routeQueued  = "enqueued"
)

// ErrHandlerPanic wraps a panic recovered from handler code.
var ErrHandlerPanic = errors.New("handler panicked")

// CallbackAnswerer acknowledges button clicks on the platform.
type CallbackAnswerer interface {
	AnswerCallbackQuery(ctx context.Context, queryID, text string) error
}

// CommandRouter handles prefixed text messages in private and group chats.
type CommandRouter interface {
	Prefix() byte
	Route(ctx context.Context, conv *Conversation, botName string) error
}

// Dispatcher receives updates from every chat and runs at most one handler
// invocation per chat. Updates for a chat with a running invocation are queued
// for it; an idle chat starts a new invocation chosen by chat kind or command.
type Dispatcher struct {
	logger     *slog.Logger
	registry   *Registry
	entries    [chatKindCount]HandlerFunc
	router     CommandRouter
	botName    string
	answerer   CallbackAnswerer
	autoAnswer bool
	policy     *policy.Policy
	metrics    *Metrics
	tracer     trace.Tracer
	newID      func() string
	now        func() time.Time

	maxSessions int
	optErr      error

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithHandler sets the entry point for chats of the given kind.
func WithHandler(kind ChatKind, fn HandlerFunc) Option {
	return func(d *Dispatcher) {
		if kind < 0 || kind >= chatKindCount {
			d.optErr = fmt.Errorf("unknown chat kind %d", kind)
			return
		}
		d.entries[kind] = fn
	}
}

// WithRouter routes prefixed text messages to commands.
func WithRouter(r CommandRouter) Option {
	return func(d *Dispatcher) { d.router = r }
}

// WithBotName sets the bot username used to strip @mentions from commands.
func WithBotName(name string) Option {
	return func(d *Dispatcher) { d.botName = strings.TrimPrefix(strings.TrimSpace(name), "@") }
}

// WithCallbackAnswerer sets the client used to acknowledge button clicks.
func WithCallbackAnswerer(a CallbackAnswerer) Option {
	return func(d *Dispatcher) { d.answerer = a }
}

// WithAutoAnswerCallbacks controls whether clicks skipped by ButtonClick and
// NewMessage are acknowledged. Enabled by default.
func WithAutoAnswerCallbacks(enabled bool) Option {
	return func(d *Dispatcher) { d.autoAnswer = enabled }
}

// WithPolicy filters updates before dispatch.
func WithPolicy(p *policy.Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithMetrics records dispatch metrics.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithMaxSessions bounds the number of idle sessions kept in memory. Zero
// keeps every session.
func WithMaxSessions(n int) Option {
	return func(d *Dispatcher) { d.maxSessions = n }
}

// WithTracerProvider sets the OpenTelemetry tracer provider. Defaults to the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) { d.tracer = tp.Tracer(tracerName) }
}

// NewDispatcher creates a Dispatcher. Entry points that are not set do nothing.
func NewDispatcher(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		autoAnswer: true,
		tracer:     otel.Tracer(tracerName),
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.optErr != nil {
		return nil, d.optErr
	}
	if d.logger == nil {
		return nil, errors.New("nil logger")
	}
	if d.maxSessions < 0 {
		return nil, errors.New("negative session limit")
	}

	d.registry = NewRegistry(d.maxSessions)
	d.registry.onEvict = func(chatID int64) {
		d.metrics.sessionEvicted()
		d.logger.Debug("session evicted", "chat_id", chatID)
	}
	d.ctx, d.cancel = context.WithCancelCause(context.Background())
	return d, nil
}

// HandleUpdate normalizes a raw update and delivers it. It never blocks on
// handler code and is safe for concurrent use by several transports.
func (d *Dispatcher) HandleUpdate(raw tg.Update) {
	u, chat := Normalize(raw)
	chatID := ChatID(chat)
	d.metrics.observeUpdate(u.Kind)

	if d.policy != nil {
		if err := d.policy.Authorize(chatID, raw.UpdateID, u.Time()); err != nil {
			d.metrics.updateRejected(policy.Reason(err))
			d.logger.Debug("update rejected by policy",
				"chat_id", chatID, "update_id", raw.UpdateID, "error", err)
			return
		}
	}

	for {
		s := d.registry.GetOrCreate(chatID)
		id := d.newID()
		started, ok := s.offer(u, id, d.now())
		if !ok {
			continue // evicted between lookup and offer
		}
		d.metrics.setSessions(d.registry.Len())
		if !started {
			d.metrics.observeRoute(routeQueued)
			return
		}
		if !d.start(s, id, chat, u) {
			s.release(id)
			d.logger.Debug("dispatcher stopped, update dropped",
				"chat_id", chatID, "update_id", raw.UpdateID)
		}
		return
	}
}

// Sessions returns the number of chat sessions held in memory.
func (d *Dispatcher) Sessions() int {
	return d.registry.Len()
}

// Shutdown stops accepting new invocations, wakes every waiting conversation
// with ErrStopped and waits for running handlers to return or ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.cancel(ErrStopped)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) start(s *Session, id string, chat *tg.Chat, u Update) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return false
	}
	d.wg.Add(1)
	go d.run(s, id, chat, u)
	return true
}

// run executes invocations for s until its mailbox is empty when one returns.
func (d *Dispatcher) run(s *Session, id string, chat *tg.Chat, u Update) {
	defer d.wg.Done()
	for {
		d.invoke(s, id, chat, u)

		if d.ctx.Err() != nil {
			s.release(id)
			return
		}
		nextID := d.newID()
		next, ok := s.finish(id, nextID, d.now())
		if !ok {
			return
		}
		id, u = nextID, next
		_, chat = Normalize(next.Raw)
	}
}

func (d *Dispatcher) invoke(s *Session, id string, chat *tg.Chat, u Update) {
	entry, fn := d.entryPoint(chat, u)
	logger := d.logger.With("chat_id", s.chatID, "invocation_id", id, "entry", entry)

	ctx, span := d.tracer.Start(d.ctx, "turnbot.invocation", trace.WithAttributes(
		attribute.Int64("turnbot.chat_id", s.chatID),
		attribute.String("turnbot.entry", entry),
		attribute.String("turnbot.invocation_id", id),
	))
	defer span.End()

	conv := &Conversation{
		Chat:    chat,
		User:    u.Sender(),
		Update:  u,
		id:      id,
		session: s,
		d:       d,
	}

	d.metrics.observeRoute(entry)
	d.metrics.invocationStarted()
	logger.Debug("invocation started", "kind", u.Kind.String())
	started := d.now()

	err := call(ctx, fn, conv)

	outcome := "ok"
	switch {
	case err == nil:
		logger.Debug("invocation finished")
	case errors.Is(err, ErrLeftChat):
		outcome = "left_chat"
		logger.Debug("conversation aborted: bot left the chat")
	case errors.Is(err, ErrStopped), errors.Is(err, context.Canceled):
		outcome = "canceled"
		logger.Debug("conversation canceled", "error", err)
	default:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("handler failed", "error", err)
	}
	d.metrics.invocationDone(entry, outcome, d.now().Sub(started))
}

// entryPoint picks the handler for an idle chat: the command router for
// prefixed text in private and group chats, otherwise the chat kind's handler.
func (d *Dispatcher) entryPoint(chat *tg.Chat, u Update) (string, HandlerFunc) {
	kind := ChatKindOf(chat)
	if d.router != nil && isCommand(u, d.router.Prefix()) && (kind == ChatPrivate || kind == ChatGroup) {
		return entryCommand, func(ctx context.Context, conv *Conversation) error {
			return d.router.Route(ctx, conv, d.botName)
		}
	}
	return kind.String(), d.entries[kind]
}

func isCommand(u Update, prefix byte) bool {
	if u.Kind != KindNewMessage || u.Category() != CategoryText {
		return false
	}
	text := u.Text()
	return len(text) > 0 && text[0] == prefix
}

func call(ctx context.Context, fn HandlerFunc, conv *Conversation) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return fn(ctx, conv)
}

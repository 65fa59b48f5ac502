package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jdelaire/turnbot/core/tg"
)

var (
	// ErrLeftChat aborts a conversation whose bot was removed from the chat while
	// waiting for a click or a message. Handlers may check for it with errors.Is.
	ErrLeftChat = errors.New("the chat was left")

	// ErrNotCallbackQuery is returned by ReplyCallback when the current event is
	// not a button click.
	ErrNotCallbackQuery = errors.New("current update is not a callback query")

	// ErrStopped is the cancellation cause seen by conversations when the
	// dispatcher shuts down.
	ErrStopped = errors.New("dispatcher stopped")

	errNoAnswerer = errors.New("no callback answerer configured")
)

// HandlerFunc is application code bound to one chat. It may block in the
// Conversation's wait methods; the next invocation for the same chat starts only
// after it returns.
type HandlerFunc func(ctx context.Context, conv *Conversation) error

// Conversation is the state of one handler invocation. Update is the live view:
// every wait method overwrites it with the event it consumed.
type Conversation struct {
	Chat   *tg.Chat
	User   *tg.User
	Update Update

	id      string
	session *Session
	d       *Dispatcher
}

// ID returns the invocation id used in logs and traces.
func (c *Conversation) ID() string { return c.id }

// ChatKind returns the kind of the conversation's chat.
func (c *Conversation) ChatKind() ChatKind { return ChatKindOf(c.Chat) }

// NextEvent waits for the next update of this chat, whatever it is, and makes it
// the current one. On cancellation the current update is left untouched and the
// context's cause is returned.
func (c *Conversation) NextEvent(ctx context.Context) (Kind, error) {
	if c.d.ctx.Err() != nil {
		return KindNone, ErrStopped
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(c.d.ctx, func() { cancel(ErrStopped) })
	defer stop()

	u, err := c.session.next(ctx)
	if err != nil {
		return KindNone, context.Cause(ctx)
	}
	c.Update = u
	return u.Kind, nil
}

// ButtonClick waits for a click on an inline button of msg and returns its
// callback data. With a nil msg any click qualifies. Clicks on other messages are
// consumed and, if enabled, acknowledged so the client stops its spinner.
func (c *Conversation) ButtonClick(ctx context.Context, msg *tg.Message) (string, error) {
	for {
		kind, err := c.NextEvent(ctx)
		if err != nil {
			return "", err
		}
		switch {
		case kind == KindCallbackQuery:
			if msg == nil || (c.Update.Message != nil && c.Update.Message.MessageID == msg.MessageID) {
				return c.Update.CallbackData, nil
			}
			c.dismissCallback(ctx)
		case c.Update.leftChat():
			return "", ErrLeftChat
		}
	}
}

// NewMessage waits for a new text, media/document or sticker/dice message and
// returns its category. Other events are consumed.
func (c *Conversation) NewMessage(ctx context.Context) (Category, error) {
	for {
		kind, err := c.NextEvent(ctx)
		if err != nil {
			return CategoryOther, err
		}
		switch {
		case kind == KindNewMessage:
			switch cat := c.Update.Category(); cat {
			case CategoryText, CategoryMediaOrDocument, CategoryStickerOrDice:
				return cat, nil
			}
		case kind == KindCallbackQuery:
			c.dismissCallback(ctx)
		case c.Update.leftChat():
			return CategoryOther, ErrLeftChat
		}
	}
}

// NewTextMessage waits for a new text message and returns its text.
func (c *Conversation) NewTextMessage(ctx context.Context) (string, error) {
	for {
		cat, err := c.NewMessage(ctx)
		if err != nil {
			return "", err
		}
		if cat == CategoryText {
			return c.Update.Text(), nil
		}
	}
}

// ReplyCallback answers the button click that is the current update.
func (c *Conversation) ReplyCallback(ctx context.Context, text string) error {
	q := c.Update.Raw.CallbackQuery
	if c.Update.Kind != KindCallbackQuery || q == nil {
		return ErrNotCallbackQuery
	}
	if c.d.answerer == nil {
		return errNoAnswerer
	}
	if err := c.d.answerer.AnswerCallbackQuery(ctx, q.ID, text); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

func (c *Conversation) dismissCallback(ctx context.Context) {
	q := c.Update.Raw.CallbackQuery
	if !c.d.autoAnswer || c.d.answerer == nil || q == nil {
		return
	}
	if err := c.d.answerer.AnswerCallbackQuery(ctx, q.ID, ""); err != nil {
		c.d.logger.Warn("dismiss callback query failed",
			"chat_id", c.session.chatID, "invocation_id", c.id, "error", err)
	}
}

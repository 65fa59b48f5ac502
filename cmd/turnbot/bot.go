package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/jdelaire/turnbot/adapters/telegram_client"
	"github.com/jdelaire/turnbot/core"
	"github.com/jdelaire/turnbot/core/commands"
	"github.com/jdelaire/turnbot/core/tg"
	"github.com/jdelaire/turnbot/internal/config"
)

const (
	defaultAnswerTimeout = 5 * time.Minute
	defaultGroupIdle     = 30 * time.Second
)

// messenger is the part of the Bot API the bot writes to.
type messenger interface {
	SendMessage(ctx context.Context, params telegram_client.SendMessageParams) (*tg.Message, error)
}

// bot is the application behind turnbot run: a few commands plus a private and
// a group conversation.
type bot struct {
	api      messenger
	router   *commands.Router
	replies  func() config.Replies
	sessions func() int
	botName  string
	logger   *slog.Logger
	started  time.Time

	answerTimeout time.Duration
	groupIdle     time.Duration
}

func newBot(api messenger, router *commands.Router, replies func() config.Replies, logger *slog.Logger) *bot {
	return &bot{
		api:           api,
		router:        router,
		replies:       replies,
		sessions:      func() int { return 0 },
		logger:        logger,
		started:       time.Now(),
		answerTimeout: defaultAnswerTimeout,
		groupIdle:     defaultGroupIdle,
	}
}

// register installs the command table and the router hooks.
func (b *bot) register() error {
	b.router.OnUnknown(b.unknownCommand)
	b.router.OnWrongScope(b.wrongScope)
	b.router.OnPreExecution(b.auditCommand)
	b.router.OnDefault(b.help)
	return b.router.SetCommands(
		commands.Command{Name: "start", Description: "Introduce yourself", Private: b.start},
		commands.Command{Name: "button", Description: "Pick one of two buttons", Private: b.button, Group: b.button},
		commands.Command{Name: "help", Description: "List the commands", Private: b.help, Group: b.help},
		commands.Command{Name: "status", Description: "Show uptime and load", Private: b.status, Group: b.status, NeedsPreExecution: true},
	)
}

// options returns the dispatcher entry points served by the bot.
func (b *bot) options() []core.Option {
	return []core.Option{
		core.WithHandler(core.ChatPrivate, b.private),
		core.WithHandler(core.ChatGroup, b.group),
	}
}

func (b *bot) send(ctx context.Context, conv *core.Conversation, text string) (*tg.Message, error) {
	msg, err := b.api.SendMessage(ctx, telegram_client.SendMessageParams{ChatID: conv.Chat.ID, Text: text})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// private handles non-command messages in private chats.
func (b *bot) private(ctx context.Context, conv *core.Conversation) error {
	if conv.Update.Category() != core.CategoryText {
		return nil
	}
	p := string(b.router.Prefix())
	_, err := b.send(ctx, conv, fmt.Sprintf("Send %sstart to introduce yourself or %shelp for the commands.", p, p))
	return err
}

// group logs chat activity until the chat has been quiet for groupIdle.
// Commands typed meanwhile are routed in place.
func (b *bot) group(ctx context.Context, conv *core.Conversation) error {
	for {
		if err := b.observe(ctx, conv); err != nil {
			return err
		}

		waitCtx, cancel := context.WithTimeout(ctx, b.groupIdle)
		_, err := conv.NextEvent(waitCtx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (b *bot) observe(ctx context.Context, conv *core.Conversation) error {
	u := conv.Update
	switch u.Kind {
	case core.KindNewMessage:
		if strings.HasPrefix(u.Text(), string(b.router.Prefix())) {
			return b.router.Route(ctx, conv, b.botName)
		}
		b.logger.Info("group message", "chat_id", conv.Chat.ID, "from", conv.User.Name(), "category", u.Category().String())
	case core.KindEditedMessage:
		b.logger.Info("group message edited", "chat_id", conv.Chat.ID, "from", conv.User.Name())
	case core.KindCallbackQuery:
		b.logger.Info("group button click", "chat_id", conv.Chat.ID, "data", u.CallbackData)
	default:
		b.logger.Debug("group update", "chat_id", conv.Chat.ID, "kind", u.Kind.String())
	}
	return nil
}

func (b *bot) start(ctx context.Context, conv *core.Conversation, _ []string) error {
	ctx, cancel := context.WithTimeout(ctx, b.answerTimeout)
	defer cancel()

	if _, err := b.send(ctx, conv, "Hi! What is your first name?"); err != nil {
		return err
	}
	first, err := conv.NewTextMessage(ctx)
	if err != nil {
		return unlessAbandoned(err)
	}
	if _, err := b.send(ctx, conv, "And your last name?"); err != nil {
		return err
	}
	last, err := conv.NewTextMessage(ctx)
	if err != nil {
		return unlessAbandoned(err)
	}
	_, err = b.send(ctx, conv, fmt.Sprintf("Nice to meet you, %s %s!", strings.TrimSpace(first), strings.TrimSpace(last)))
	return err
}

func (b *bot) button(ctx context.Context, conv *core.Conversation, _ []string) error {
	ctx, cancel := context.WithTimeout(ctx, b.answerTimeout)
	defer cancel()

	keyboard := &tg.InlineKeyboardMarkup{InlineKeyboard: [][]tg.InlineKeyboardButton{{
		{Text: "Left", CallbackData: "left"},
		{Text: "Right", CallbackData: "right"},
	}}}
	msg, err := b.api.SendMessage(ctx, telegram_client.SendMessageParams{
		ChatID:      conv.Chat.ID,
		Text:        "Pick one:",
		ReplyMarkup: keyboard,
	})
	if err != nil {
		return fmt.Errorf("send keyboard: %w", err)
	}

	choice, err := conv.ButtonClick(ctx, msg)
	if err != nil {
		return unlessAbandoned(err)
	}
	if err := conv.ReplyCallback(ctx, "Got it"); err != nil {
		b.logger.Warn("answer button click failed", "chat_id", conv.Chat.ID, "error", err)
	}
	_, err = b.send(ctx, conv, fmt.Sprintf("%s picked %s.", conv.Update.Sender().Name(), choice))
	return err
}

func (b *bot) help(ctx context.Context, conv *core.Conversation, _ []string) error {
	_, err := b.send(ctx, conv, b.router.HelpText())
	return err
}

func (b *bot) status(ctx context.Context, conv *core.Conversation, _ []string) error {
	text := fmt.Sprintf("Uptime: %s\nGoroutines: %d\nChat sessions: %d",
		time.Since(b.started).Round(time.Second), runtime.NumGoroutine(), b.sessions())
	_, err := b.send(ctx, conv, text)
	return err
}

func (b *bot) unknownCommand(ctx context.Context, conv *core.Conversation, _ []string) error {
	name, _, _ := strings.Cut(strings.Fields(conv.Update.Text())[0], "@")
	_, err := b.send(ctx, conv, config.Render(b.replies().UnknownCommand, map[string]string{"command": name}))
	return err
}

func (b *bot) wrongScope(ctx context.Context, conv *core.Conversation, cmd commands.Command, isPrivate bool) error {
	scope := "private chats"
	if isPrivate {
		scope = "groups"
	}
	_, err := b.send(ctx, conv, config.Render(b.replies().WrongScope, map[string]string{
		"command": cmd.Name,
		"scope":   scope,
	}))
	return err
}

func (b *bot) auditCommand(_ context.Context, conv *core.Conversation, cmd commands.Command, args []string) error {
	b.logger.Info("command", "chat_id", conv.Chat.ID, "from", conv.User.Name(), "command", cmd.Name, "args", len(args))
	return nil
}

// unlessAbandoned drops the error of a question the user never answered.
func unlessAbandoned(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

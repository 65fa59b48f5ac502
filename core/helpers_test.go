package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jdelaire/turnbot/core/tg"
)

const waitTimeout = 2 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(t *testing.T, opts ...Option) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(append([]Option{WithLogger(testLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = d.Shutdown(ctx)
	})
	return d
}

func privateChat(id int64) *tg.Chat { return &tg.Chat{ID: id, Type: tg.ChatTypePrivate} }
func groupChat(id int64) *tg.Chat   { return &tg.Chat{ID: id, Type: tg.ChatTypeSupergroup} }

func textUpdate(updateID int64, chat *tg.Chat, text string) tg.Update {
	return tg.Update{
		UpdateID: updateID,
		Message: &tg.Message{
			MessageID: updateID,
			From:      &tg.User{ID: 7, Username: "alice"},
			Chat:      chat,
			Text:      text,
		},
	}
}

func stickerUpdate(updateID int64, chat *tg.Chat) tg.Update {
	return tg.Update{
		UpdateID: updateID,
		Message:  &tg.Message{MessageID: updateID, Chat: chat, Sticker: &tg.Object{}},
	}
}

func photoUpdate(updateID int64, chat *tg.Chat) tg.Update {
	return tg.Update{
		UpdateID: updateID,
		Message:  &tg.Message{MessageID: updateID, Chat: chat, Photo: []tg.PhotoSize{{FileID: "f"}}},
	}
}

func editedUpdate(updateID int64, chat *tg.Chat, text string) tg.Update {
	return tg.Update{
		UpdateID:      updateID,
		EditedMessage: &tg.Message{MessageID: updateID, Chat: chat, Text: text},
	}
}

func callbackUpdate(updateID int64, chat *tg.Chat, messageID int64, queryID, data string) tg.Update {
	return tg.Update{
		UpdateID: updateID,
		CallbackQuery: &tg.CallbackQuery{
			ID:      queryID,
			From:    &tg.User{ID: 7},
			Message: &tg.Message{MessageID: messageID, Chat: chat},
			Data:    data,
		},
	}
}

func memberUpdate(updateID int64, chat *tg.Chat, status string) tg.Update {
	return tg.Update{
		UpdateID: updateID,
		MyChatMember: &tg.ChatMemberUpdated{
			Chat:          chat,
			From:          &tg.User{ID: 7},
			OldChatMember: tg.ChatMember{Status: tg.MemberStatusMember},
			NewChatMember: tg.ChatMember{Status: status},
		},
	}
}

// recv waits for a value on ch or fails the test.
func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for handler")
		var zero T
		return zero
	}
}

type answeredQuery struct {
	id   string
	text string
}

type stubAnswerer struct {
	mu      sync.Mutex
	answers []answeredQuery
	err     error
}

func (s *stubAnswerer) AnswerCallbackQuery(_ context.Context, queryID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, answeredQuery{id: queryID, text: text})
	return s.err
}

func (s *stubAnswerer) answered() []answeredQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]answeredQuery(nil), s.answers...)
}

type stubRouter struct {
	prefix byte
	calls  chan string
}

func (r *stubRouter) Prefix() byte { return r.prefix }

func (r *stubRouter) Route(_ context.Context, conv *Conversation, botName string) error {
	r.calls <- conv.Update.Text() + "|" + botName
	return nil
}

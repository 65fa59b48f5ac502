package telegram_client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jdelaire/turnbot/core/tg"
)

type captured struct {
	path string
	body map[string]any
}

func newTestServer(t *testing.T, result string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		got.path = r.URL.Path
		got.body = nil
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&got.body); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New("test-token", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_EmptyToken(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := New("tok", WithHTTPClient(nil)); err == nil {
		t.Fatal("expected error for nil http client")
	}
}

func TestClient_SendMessage(t *testing.T) {
	var got captured
	srv := newTestServer(t, `{"message_id":77,"chat":{"id":12345,"type":"private"},"text":"hello"}`, &got)
	c := newTestClient(t, srv)

	msg, err := c.SendMessage(context.Background(), SendMessageParams{
		ChatID: 12345,
		Text:   "hello",
		ReplyMarkup: &tg.InlineKeyboardMarkup{InlineKeyboard: [][]tg.InlineKeyboardButton{
			{{Text: "Yes", CallbackData: "yes"}},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.MessageID != 77 {
		t.Errorf("message id = %d, want 77", msg.MessageID)
	}
	if got.path != "/bottest-token/sendMessage" {
		t.Errorf("path = %s", got.path)
	}
	if got.body["chat_id"] != float64(12345) || got.body["text"] != "hello" {
		t.Errorf("unexpected body: %v", got.body)
	}
	markup, ok := got.body["reply_markup"].(map[string]any)
	if !ok || markup["inline_keyboard"] == nil {
		t.Errorf("reply_markup missing: %v", got.body)
	}
}

func TestClient_SendText(t *testing.T) {
	var got captured
	srv := newTestServer(t, `{"message_id":1,"chat":{"id":5,"type":"group"}}`, &got)
	c := newTestClient(t, srv)

	if _, err := c.SendText(context.Background(), 5, "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got.body["reply_markup"]; ok {
		t.Error("reply_markup should be omitted")
	}
}

func TestClient_GetUpdates(t *testing.T) {
	var got captured
	srv := newTestServer(t, `[
		{"update_id":100,"message":{"message_id":1,"chat":{"id":123,"type":"private"},"date":1700000000,"text":"/start"}},
		{"update_id":101,"callback_query":{"id":"q","data":"yes","message":{"message_id":2,"chat":{"id":123,"type":"private"}}}}
	]`, &got)
	c := newTestClient(t, srv)

	updates, err := c.GetUpdates(context.Background(), 100, 30*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if updates[0].Message == nil || updates[0].Message.Text != "/start" {
		t.Errorf("first update = %+v", updates[0])
	}
	if updates[1].CallbackQuery == nil || updates[1].CallbackQuery.Data != "yes" {
		t.Errorf("second update = %+v", updates[1])
	}
	if got.body["offset"] != float64(100) || got.body["timeout"] != float64(30) {
		t.Errorf("unexpected body: %v", got.body)
	}
}

func TestClient_GetUpdatesWithoutOffset(t *testing.T) {
	var got captured
	srv := newTestServer(t, `[]`, &got)
	c := newTestClient(t, srv)

	if _, err := c.GetUpdates(context.Background(), 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got.body["offset"]; ok {
		t.Errorf("offset should be omitted: %v", got.body)
	}
}

func TestClient_AnswerCallbackQuery(t *testing.T) {
	var got captured
	srv := newTestServer(t, `true`, &got)
	c := newTestClient(t, srv)

	if err := c.AnswerCallbackQuery(context.Background(), "q-1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.body["callback_query_id"] != "q-1" {
		t.Errorf("unexpected body: %v", got.body)
	}
	if _, ok := got.body["text"]; ok {
		t.Error("empty text should be omitted")
	}

	if err := c.AnswerCallbackQuery(context.Background(), "q-2", "Thanks!"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.body["text"] != "Thanks!" {
		t.Errorf("unexpected body: %v", got.body)
	}
}

func TestClient_SetMyCommands(t *testing.T) {
	var got captured
	srv := newTestServer(t, `true`, &got)
	c := newTestClient(t, srv)

	err := c.SetMyCommands(context.Background(), []tg.BotCommand{{Command: "start", Description: "Start"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cmds, ok := got.body["commands"].([]any)
	if !ok || len(cmds) != 1 {
		t.Fatalf("unexpected body: %v", got.body)
	}
	if cmds[0].(map[string]any)["command"] != "start" {
		t.Errorf("unexpected command: %v", cmds[0])
	}
}

func TestClient_Webhook(t *testing.T) {
	var got captured
	srv := newTestServer(t, `true`, &got)
	c := newTestClient(t, srv)

	if err := c.SetWebhook(context.Background(), "https://bot.example.com/hook", "s3cret"); err != nil {
		t.Fatalf("SetWebhook: %v", err)
	}
	if got.path != "/bottest-token/setWebhook" || got.body["secret_token"] != "s3cret" {
		t.Errorf("unexpected request: %+v", got)
	}

	if err := c.DeleteWebhook(context.Background(), true); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}
	if got.body["drop_pending_updates"] != true {
		t.Errorf("unexpected body: %v", got.body)
	}
}

func TestClient_GetWebhookInfo(t *testing.T) {
	var got captured
	srv := newTestServer(t, `{"url":"https://bot.example.com/hook","pending_update_count":3}`, &got)
	c := newTestClient(t, srv)

	info, err := c.GetWebhookInfo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.URL != "https://bot.example.com/hook" || info.PendingUpdateCount != 3 {
		t.Errorf("info = %+v", info)
	}
	if got.body != nil {
		t.Errorf("getWebhookInfo should have no body, got %v", got.body)
	}
}

func TestClient_GetMe(t *testing.T) {
	var got captured
	srv := newTestServer(t, `{"id":42,"is_bot":true,"first_name":"Turn","username":"TurnBot"}`, &got)
	c := newTestClient(t, srv)

	me, err := c.GetMe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if me.ID != 42 || me.Username != "TurnBot" {
		t.Errorf("me = %+v", me)
	}
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	c, _ := New("test-token", WithBaseURL(server.URL))
	_, err := c.SendText(context.Background(), 1, "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.ErrorCode != 400 || !strings.Contains(apiErr.Description, "chat not found") {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	c, _ := New("test-token", WithBaseURL(server.URL))
	err := c.AnswerCallbackQuery(context.Background(), "q", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 APIError, got %v", err)
	}
}

func TestClient_RedactsToken(t *testing.T) {
	c, _ := New("123:SECRET", WithBaseURL("http://127.0.0.1:1"))
	_, err := c.GetMe(context.Background())
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), "SECRET") {
		t.Errorf("token leaked in error: %v", err)
	}
}

func TestClient_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	c, _ := New("test-token", WithBaseURL(server.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.GetUpdates(ctx, 0, 30*time.Second); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestParseWebhookURL(t *testing.T) {
	if _, err := ParseWebhookURL("https://bot.example.com/hook"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, raw := range []string{"http://bot.example.com/hook", "/hook", "https://"} {
		if _, err := ParseWebhookURL(raw); err == nil {
			t.Errorf("ParseWebhookURL(%q) should fail", raw)
		}
	}
}

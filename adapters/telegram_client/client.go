// Package telegram_client calls the Telegram Bot API.
package telegram_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jdelaire/turnbot/core/tg"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	httpTimeout    = 35 * time.Second
	redactedToken  = "<redacted>"
)

// APIError is a response with ok=false.
type APIError struct {
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *APIError) Error() string {
	if e.ErrorCode == 0 {
		return fmt.Sprintf("telegram API error %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram API error %d: %s", e.ErrorCode, e.Description)
}

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

// Client sends requests to the Telegram Bot API.
type Client struct {
	botToken string
	client   *http.Client
	baseURL  string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient replaces the HTTP client. Its timeout must exceed the long
// poll timeout passed to GetUpdates.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a client for the given bot token.
func New(botToken string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(botToken) == "" {
		return nil, errors.New("telegram: empty bot token")
	}
	c := &Client{
		botToken: botToken,
		client:   &http.Client{Timeout: httpTimeout},
		baseURL:  defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		return nil, errors.New("telegram: nil http client")
	}
	return c, nil
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (tg.User, error) {
	var me tg.User
	err := c.call(ctx, "getMe", nil, &me)
	return me, err
}

// GetUpdates long-polls for updates starting at offset. timeout is rounded down
// to whole seconds; zero makes a short poll.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tg.Update, error) {
	req := map[string]any{"timeout": int(timeout / time.Second)}
	if offset != 0 {
		req["offset"] = offset
	}
	var updates []tg.Update
	if err := c.call(ctx, "getUpdates", req, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessageParams are the parameters of sendMessage.
type SendMessageParams struct {
	ChatID           int64                    `json:"chat_id"`
	Text             string                   `json:"text"`
	ParseMode        string                   `json:"parse_mode,omitempty"`
	ReplyToMessageID int64                    `json:"reply_to_message_id,omitempty"`
	ReplyMarkup      *tg.InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// SendMessage sends a text message and returns it as stored by Telegram.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*tg.Message, error) {
	var msg tg.Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendText sends plain text to a chat.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (*tg.Message, error) {
	return c.SendMessage(ctx, SendMessageParams{ChatID: chatID, Text: text})
}

// AnswerCallbackQuery acknowledges a button click. A non-empty text is shown to
// the user as a notification.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string) error {
	req := map[string]any{"callback_query_id": queryID}
	if text != "" {
		req["text"] = text
	}
	var ok bool
	return c.call(ctx, "answerCallbackQuery", req, &ok)
}

// SetMyCommands publishes the command list shown by clients.
func (c *Client) SetMyCommands(ctx context.Context, cmds []tg.BotCommand) error {
	var ok bool
	return c.call(ctx, "setMyCommands", map[string]any{"commands": cmds}, &ok)
}

// SetWebhook registers webhookURL as the update endpoint. Telegram sends secret in the
// X-Telegram-Bot-Api-Secret-Token header of each request.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	req := map[string]any{"url": webhookURL}
	if secret != "" {
		req["secret_token"] = secret
	}
	var ok bool
	return c.call(ctx, "setWebhook", req, &ok)
}

// DeleteWebhook removes the webhook so that GetUpdates can be used again.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	var ok bool
	return c.call(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": dropPending}, &ok)
}

// WebhookInfo describes the configured webhook.
type WebhookInfo struct {
	URL                string `json:"url"`
	PendingUpdateCount int    `json:"pending_update_count"`
	LastErrorDate      int64  `json:"last_error_date,omitempty"`
	LastErrorMessage   string `json:"last_error_message,omitempty"`
}

// GetWebhookInfo returns the current webhook state.
func (c *Client) GetWebhookInfo(ctx context.Context) (WebhookInfo, error) {
	var info WebhookInfo
	err := c.call(ctx, "getWebhookInfo", nil, &info)
	return info, err
}

// call posts params as JSON to method and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	var body io.Reader
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("telegram %s: encode request: %w", method, err)
		}
		body = bytes.NewReader(raw)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return c.redact(fmt.Errorf("telegram %s: create request: %w", method, err))
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.redact(fmt.Errorf("telegram %s: %w", method, err))
	}
	defer resp.Body.Close()

	rsp := apiResponse[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&rsp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{StatusCode: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !rsp.OK || resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, ErrorCode: rsp.ErrorCode, Description: rsp.Description}
	}
	if out == nil || len(rsp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rsp.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

// redact removes the bot token from transport errors, which embed the URL.
func (c *Client) redact(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, c.botToken) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(msg, c.botToken, redactedToken), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// ParseWebhookURL validates a public webhook URL. Telegram accepts only https.
func ParseWebhookURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse webhook url: %w", err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("webhook url must be an absolute https url, got %q", raw)
	}
	return u, nil
}

package telegram_webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jdelaire/turnbot/core/tg"
)

// MaxPayloadBytes bounds the size of one webhook delivery.
const MaxPayloadBytes = 1 << 20

var (
	ErrPayloadTooLarge = fmt.Errorf("payload exceeds %d byte limit", MaxPayloadBytes)
	ErrMissingUpdateID = errors.New("update_id is required")
)

// DecodeUpdate validates a webhook body and returns the update it carries.
// Unknown fields are accepted since the Bot API adds new ones over time.
func DecodeUpdate(data []byte) (tg.Update, error) {
	if len(data) > MaxPayloadBytes {
		return tg.Update{}, ErrPayloadTooLarge
	}

	var probe struct {
		UpdateID *int64 `json:"update_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return tg.Update{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if probe.UpdateID == nil {
		return tg.Update{}, ErrMissingUpdateID
	}

	var u tg.Update
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&u); err != nil {
		return tg.Update{}, fmt.Errorf("invalid update: %w", err)
	}
	return u, nil
}

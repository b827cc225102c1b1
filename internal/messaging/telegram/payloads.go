package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Update is the subset of a Bot API update the webhook consumes.
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message,omitempty"`
	EditedMessage *Message `json:"edited_message,omitempty"`
}

// Message is a Telegram chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// User identifies the sender of a message.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// SentAt converts the unix timestamp of the message.
func (m *Message) SentAt() time.Time {
	if m == nil || m.Date == 0 {
		return time.Time{}
	}
	return time.Unix(m.Date, 0).UTC()
}

// TextMessage returns the message when the update carries non-empty text.
func (u Update) TextMessage() (*Message, bool) {
	if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
		return nil, false
	}
	if u.Message.From != nil && u.Message.From.IsBot {
		return nil, false
	}
	return u.Message, true
}

// ParseUpdate decodes a webhook body.
func ParseUpdate(body []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(body, &u); err != nil {
		return Update{}, fmt.Errorf("telegram: decode update: %w", err)
	}
	if u.UpdateID == 0 {
		return Update{}, errors.New("telegram: update_id missing")
	}
	return u, nil
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// APIError is a Bot API failure.
type APIError struct {
	StatusCode  int
	ErrorCode   int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram: %s (status=%d)", e.Description, e.StatusCode)
	}
	return fmt.Sprintf("telegram: http status %d", e.StatusCode)
}

func decodeResponse(status int, body []byte) (json.RawMessage, *APIError) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &APIError{StatusCode: status, Description: strings.TrimSpace(string(body))}
	}
	if env.OK && status >= 200 && status < 300 {
		return env.Result, nil
	}
	apiErr := &APIError{StatusCode: status, ErrorCode: env.ErrorCode, Description: env.Description}
	if apiErr.StatusCode < 400 && env.ErrorCode >= 400 {
		apiErr.StatusCode = env.ErrorCode
	}
	if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
		apiErr.RetryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
	}
	return nil, apiErr
}

package telegram

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/finchat/pkg/logging"
)

const (
	defaultBaseURL   = "https://api.telegram.org"
	defaultUserAgent = "finchat-telegram/0.1"

	// SecretTokenHeader carries the secret configured with setWebhook.
	SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
)

var (
	// ErrSecretMismatch is returned when the webhook secret header does not match.
	ErrSecretMismatch = errors.New("telegram: secret token mismatch")
)

// Config controls how the Telegram client behaves.
type Config struct {
	BaseURL       string
	Token         string
	WebhookSecret string
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	HTTPClient    *http.Client
	Logger        *logging.Logger
	UserAgent     string
}

// Client wraps the Bot API endpoints the chat pipeline needs.
type Client struct {
	token         string
	baseURL       string
	webhookSecret string
	httpClient    *http.Client
	maxRetries    int
	backoff       time.Duration
	logger        *logging.Logger
	userAgent     string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		token:         cfg.Token,
		baseURL:       baseURL,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		backoff:       backoff,
		logger:        logger,
		userAgent:     userAgent,
	}, nil
}

// SendMessage posts a plain text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	if chatID == 0 {
		return nil, errors.New("telegram: chat id required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("telegram: message text required")
	}
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal send body: %w", err)
	}
	data, err := c.invoke(ctx, "sendMessage", body)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("telegram: decode sendMessage result: %w", err)
	}
	return &msg, nil
}

// VerifySecretToken checks the webhook secret header. An empty configured
// secret disables the check.
func (c *Client) VerifySecretToken(header string) error {
	if c.webhookSecret == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(header)), []byte(c.webhookSecret)) != 1 {
		return ErrSecretMismatch
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method string, body []byte) (json.RawMessage, error) {
	fullURL := c.baseURL + "/bot" + c.token + "/" + method
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("telegram: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			retry := shouldRetry(0, err)
			// the token is part of the URL, keep it out of errors and logs
			err = redactToken(err, c.token)
			if !retry || attempt == c.maxRetries {
				return nil, fmt.Errorf("telegram: http error: %w", err)
			}
			lastErr = err
			c.logRetry(method, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt, 0); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("telegram: read response: %w", readErr)
		}
		result, apiErr := decodeResponse(resp.StatusCode, data)
		if apiErr == nil {
			return result, nil
		}
		if attempt < c.maxRetries && shouldRetry(apiErr.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(method, attempt, apiErr.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt, apiErr.RetryAfter); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("telegram: request failed without response")
}

func (c *Client) sleep(ctx context.Context, attempt int, retryAfter time.Duration) error {
	delay := c.backoff * time.Duration(1<<attempt)
	if retryAfter > delay {
		delay = retryAfter
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(method string, attempt int, status int, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn("telegram retry",
		"method", method,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}

func redactToken(err error, token string) error {
	msg := err.Error()
	if token == "" || !strings.Contains(msg, token) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, token, "<redacted>"))
}

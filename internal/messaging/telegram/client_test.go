package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wolfman30/finchat/pkg/logging"
)

func TestSendMessage(t *testing.T) {
	payload := mustLoadFixture(t, "send_message_success.json")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottest-token/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		var req sendMessageRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.ChatID != 123456789 || req.Text != "olá" {
			t.Errorf("unexpected request %#v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	msg, err := client.SendMessage(context.Background(), 123456789, "olá")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if msg.MessageID != 812 || msg.Chat.ID != 123456789 {
		t.Fatalf("unexpected message: %#v", msg)
	}
	if msg.SentAt().Unix() != 1774969200 {
		t.Fatalf("unexpected sent at %v", msg.SentAt())
	}
}

func TestSendMessageValidation(t *testing.T) {
	client := newTestClient(t, nil, Config{})
	if _, err := client.SendMessage(context.Background(), 0, "hi"); err == nil {
		t.Fatalf("expected chat id error")
	}
	if _, err := client.SendMessage(context.Background(), 1, "   "); err == nil {
		t.Fatalf("expected text error")
	}
}

func TestNewClientDefaultsAndValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected token validation error")
	}
	client, err := New(Config{Token: "tok", MaxRetries: -1})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.baseURL != defaultBaseURL {
		t.Fatalf("expected default base url, got %s", client.baseURL)
	}
	if client.httpClient == nil || client.httpClient.Timeout != 10*time.Second {
		t.Fatalf("expected default timeout")
	}
	if client.maxRetries != 0 {
		t.Fatalf("expected negative retries to clamp to 0")
	}
	if client.logger == nil {
		t.Fatalf("expected default logger")
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls int32
	payload := mustLoadFixture(t, "send_message_success.json")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&calls, 1)
		if current == 1 {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`))
			return
		}
		w.Write(payload)
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{MaxRetries: 2, Backoff: 5 * time.Millisecond})
	if _, err := client.SendMessage(context.Background(), 123456789, "retry"); err != nil {
		t.Fatalf("send message after retry: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestRetryHonoursRetryAfter(t *testing.T) {
	var calls int32
	payload := mustLoadFixture(t, "send_message_success.json")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 1","parameters":{"retry_after":1}}`))
			return
		}
		w.Write(payload)
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{MaxRetries: 1, Backoff: time.Millisecond})
	start := time.Now()
	if _, err := client.SendMessage(context.Background(), 123456789, "slow down"); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("expected retry_after to be honoured, waited %s", elapsed)
	}
}

func TestAPIErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{MaxRetries: 3, Backoff: time.Millisecond})
	_, err := client.SendMessage(context.Background(), 42, "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || !strings.Contains(apiErr.Description, "chat not found") {
		t.Fatalf("unexpected api error %#v", apiErr)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestOKFalseWithSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	_, err := client.SendMessage(context.Background(), 42, "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected error code to be promoted, got %d", apiErr.StatusCode)
	}
}

func TestRetryExhaustedReturnsLastError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{MaxRetries: 2, Backoff: time.Millisecond})
	_, err := client.SendMessage(context.Background(), 42, "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 APIError, got %v", err)
	}
	if apiErr.Description != "not json" {
		t.Fatalf("expected raw body as description, got %q", apiErr.Description)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestContextCancelStopsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{MaxRetries: 5, Backoff: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.SendMessage(ctx, 42, "hello")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestTransportErrorRedactsToken(t *testing.T) {
	client := newTestClient(t, nil, Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.SendMessage(context.Background(), 42, "hello")
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if strings.Contains(err.Error(), "test-token") {
		t.Fatalf("token leaked in error: %v", err)
	}
}

func TestVerifySecretToken(t *testing.T) {
	client := newTestClient(t, nil, Config{WebhookSecret: "s3cret"})
	if err := client.VerifySecretToken("s3cret"); err != nil {
		t.Fatalf("verify secret: %v", err)
	}
	if err := client.VerifySecretToken("other"); !errors.Is(err, ErrSecretMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := client.VerifySecretToken(""); !errors.Is(err, ErrSecretMismatch) {
		t.Fatalf("expected mismatch for missing header, got %v", err)
	}

	open := newTestClient(t, nil, Config{})
	if err := open.VerifySecretToken(""); err != nil {
		t.Fatalf("expected no check without configured secret, got %v", err)
	}
}

func TestParseUpdate(t *testing.T) {
	update, err := ParseUpdate(mustLoadFixture(t, "text_update.json"))
	if err != nil {
		t.Fatalf("parse update: %v", err)
	}
	msg, ok := update.TextMessage()
	if !ok {
		t.Fatalf("expected text message")
	}
	if update.UpdateID != 90001 || msg.Chat.ID != 123456789 || msg.Text != "gastei 50 no mercado" {
		t.Fatalf("unexpected update %#v", update)
	}

	sticker, err := ParseUpdate(mustLoadFixture(t, "sticker_update.json"))
	if err != nil {
		t.Fatalf("parse sticker update: %v", err)
	}
	if _, ok := sticker.TextMessage(); ok {
		t.Fatalf("sticker should not be a text message")
	}

	if _, err := ParseUpdate([]byte(`{"message":{}}`)); err == nil {
		t.Fatalf("expected missing update_id error")
	}
	if _, err := ParseUpdate([]byte(`{`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestTextMessageIgnoresBots(t *testing.T) {
	update := Update{UpdateID: 1, Message: &Message{From: &User{ID: 9, IsBot: true}, Chat: Chat{ID: 9}, Text: "hi"}}
	if _, ok := update.TextMessage(); ok {
		t.Fatalf("bot messages should be ignored")
	}
}

func newTestClient(t *testing.T, server *httptest.Server, cfg Config) *Client {
	t.Helper()
	if server != nil {
		cfg.BaseURL = server.URL
	}
	cfg.Token = "test-token"
	cfg.Timeout = 2 * time.Second
	cfg.Logger = logging.Discard()
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func mustLoadFixture(t *testing.T, name string) []byte {
	t.Helper()
	_, filename, _, _ := runtime.Caller(0)
	path := filepath.Join(filepath.Dir(filename), "testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("load fixture %s: %v", name, err)
	}
	return data
}

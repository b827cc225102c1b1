package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/finchat/internal/conversation"
	httpmiddleware "github.com/wolfman30/finchat/internal/http/middleware"
	"github.com/wolfman30/finchat/internal/messaging/telegram"
	observemetrics "github.com/wolfman30/finchat/internal/observability/metrics"
	"github.com/wolfman30/finchat/pkg/logging"
)

const (
	telegramProvider       = "telegram"
	maxWebhookBody         = 1 << 20
	defaultProcessTimeout  = 45 * time.Second
	busyReply              = "Ainda estou processando sua mensagem anterior. Tente de novo em instantes."
	throttledReply         = "Recebi muitas mensagens seguidas. Aguarde um minuto e tente de novo."
	conversationIDTemplate = "telegram:"
)

type messageOrchestrator interface {
	HandleMessage(ctx context.Context, msg conversation.InboundMessage) (conversation.Reply, error)
}

type telegramSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
	VerifySecretToken(header string) error
}

type processedTracker interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// TelegramWebhookHandler turns Telegram updates into orchestrator turns.
type TelegramWebhookHandler struct {
	telegram       telegramSender
	orchestrator   messageOrchestrator
	processed      processedTracker
	logger         *logging.Logger
	metrics        *observemetrics.ConversationMetrics
	chatLimiter    *httpmiddleware.RateLimiter
	processTimeout time.Duration
}

type TelegramWebhookConfig struct {
	Telegram       telegramSender
	Orchestrator   messageOrchestrator
	Processed      processedTracker
	Logger         *logging.Logger
	Metrics        *observemetrics.ConversationMetrics
	ChatLimiter    *httpmiddleware.RateLimiter
	ProcessTimeout time.Duration
}

func NewTelegramWebhookHandler(cfg TelegramWebhookConfig) *TelegramWebhookHandler {
	if cfg.Telegram == nil || cfg.Orchestrator == nil {
		panic("handlers: telegram client and orchestrator required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = defaultProcessTimeout
	}
	return &TelegramWebhookHandler{
		telegram:       cfg.Telegram,
		orchestrator:   cfg.Orchestrator,
		processed:      cfg.Processed,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		chatLimiter:    cfg.ChatLimiter,
		processTimeout: cfg.ProcessTimeout,
	}
}

// ConversationID maps a Telegram chat onto the conversation key.
func ConversationID(chatID int64) string {
	return conversationIDTemplate + strconv.FormatInt(chatID, 10)
}

// Handle processes one webhook delivery. Once an update is accepted the
// response is always 200 so Telegram does not redeliver it.
func (h *TelegramWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if err := h.telegram.VerifySecretToken(r.Header.Get(telegram.SecretTokenHeader)); err != nil {
		h.logger.Warn("invalid telegram webhook secret", "error", err)
		h.metrics.ObserveWebhook("unauthorized")
		http.Error(w, "invalid secret token", http.StatusUnauthorized)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	update, err := telegram.ParseUpdate(body)
	if err != nil {
		h.logger.Warn("invalid telegram update", "error", err)
		h.metrics.ObserveWebhook("invalid")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	msg, ok := update.TextMessage()
	if !ok {
		h.metrics.ObserveWebhook("ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.processed != nil {
		fresh, err := h.processed.MarkProcessed(r.Context(), telegramProvider, strconv.FormatInt(update.UpdateID, 10))
		if err != nil {
			h.logger.Error("processed lookup failed", "error", err, "update_id", update.UpdateID)
			h.metrics.ObserveWebhook("error")
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if !fresh {
			h.metrics.ObserveWebhook("duplicate")
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	// the work must outlive a dropped webhook connection
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.processTimeout)
	defer cancel()
	if !h.chatLimiter.Allow(ConversationID(msg.Chat.ID)) {
		h.logger.Warn("chat rate limited", "update_id", update.UpdateID, "chat_id", msg.Chat.ID)
		h.metrics.ObserveWebhook("throttled")
		h.reply(ctx, h.logger, msg.Chat.ID, throttledReply)
		w.WriteHeader(http.StatusOK)
		return
	}
	h.process(ctx, update.UpdateID, msg)
	h.metrics.ObserveWebhook("processed")
	w.WriteHeader(http.StatusOK)
}

func (h *TelegramWebhookHandler) process(ctx context.Context, updateID int64, msg *telegram.Message) {
	start := time.Now()
	conversationID := ConversationID(msg.Chat.ID)
	logger := h.logger.With("update_id", updateID, "conversation_id", conversationID)

	inbound := conversation.InboundMessage{
		ConversationID: conversationID,
		Text:           msg.Text,
		ReceivedAt:     msg.SentAt(),
	}
	if msg.From != nil {
		inbound.SenderID = strconv.FormatInt(msg.From.ID, 10)
	}

	reply, err := h.orchestrator.HandleMessage(ctx, inbound)
	if err != nil {
		if !errors.Is(err, conversation.ErrLockTimeout) {
			logger.Error("orchestrator failed", "error", err)
			return
		}
		logger.Warn("conversation busy", "error", err)
		reply = conversation.Reply{ConversationID: conversationID, Text: busyReply}
	}
	h.metrics.ObserveLatency(string(reply.Phase), time.Since(start).Seconds())
	if reply.Text == "" {
		return
	}
	h.reply(ctx, logger, msg.Chat.ID, reply.Text)
}

func (h *TelegramWebhookHandler) reply(ctx context.Context, logger *logging.Logger, chatID int64, text string) {
	if _, err := h.telegram.SendMessage(ctx, chatID, text); err != nil {
		logger.Error("failed to send telegram reply", "error", err)
		h.metrics.ObserveReply("failed")
		return
	}
	h.metrics.ObserveReply("sent")
}

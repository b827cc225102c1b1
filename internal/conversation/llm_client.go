package conversation

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one message sent to a language model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMRequest is provider-neutral. A negative Temperature leaves the provider default.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is implemented by BedrockLLMClient, GeminiLLMClient and FallbackLLMClient.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

func historyMessages(history []Turn) []ChatMessage {
	out := make([]ChatMessage, 0, len(history))
	for _, turn := range history {
		switch turn.Role {
		case ChatRoleUser, ChatRoleAssistant:
			out = append(out, ChatMessage{Role: turn.Role, Content: turn.Content})
		}
	}
	return out
}

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Advisor answers a financial question given a summary of the user's month.
type Advisor interface {
	Advise(ctx context.Context, question, summary string) (string, error)
}

const advisorPrompt = `Você é um assistente financeiro pessoal. Responda em português do Brasil, em no máximo
quatro frases, usando apenas os números do resumo abaixo. Se o resumo não tiver a informação, diga isso.

Resumo do mês:
%s`

// LLMAdvisor answers with a language model.
type LLMAdvisor struct {
	client LLMClient
	model  string
}

func NewLLMAdvisor(client LLMClient, model string) *LLMAdvisor {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	return &LLMAdvisor{client: client, model: model}
}

func (a *LLMAdvisor) Advise(ctx context.Context, question, summary string) (string, error) {
	resp, err := a.client.Complete(ctx, LLMRequest{
		Model:       a.model,
		System:      []string{fmt.Sprintf(advisorPrompt, summary)},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: question}},
		MaxTokens:   500,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: advise: %w", err)
	}
	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return "", errors.New("conversation: advisor returned an empty answer")
	}
	return answer, nil
}

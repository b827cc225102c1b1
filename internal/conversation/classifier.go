package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var intentDescriptions = map[IntentType]string{
	IntentCreateExpense:       "registrar uma despesa ou conta a pagar que não é compra no cartão de crédito",
	IntentCreateCardPurchase:  "registrar uma compra feita no cartão de crédito, à vista ou parcelada",
	IntentFinancialConsulting: "perguntas sobre gastos, saldo, orçamento ou conselhos financeiros",
}

const classifierPrompt = `Você classifica mensagens de um assistente financeiro pessoal em português do Brasil.
Hoje é %s.

Intenções possíveis:
%s- unknown: qualquer outra coisa, incluindo respostas soltas como "sim" sem contexto

Extraia apenas os campos listados para a intenção escolhida. Valores monetários como número (50.5),
datas no formato AAAA-MM-DD, booleanos como true/false. Não invente valores ausentes.

Responda somente com JSON:
{"intent": "<intenção>", "confidence": <0 a 1>, "slots": {"<campo>": <valor>}, "missing": ["<campo>"], "clarification": "<pergunta curta quando a intenção não estiver clara>"}`

// LLMClassifier classifies messages by prompting a language model for JSON.
type LLMClassifier struct {
	client   LLMClient
	model    string
	registry *Registry
	now      func() time.Time
}

var _ Classifier = (*LLMClassifier)(nil)

// NewLLMClassifier builds the prompt from the slots each registered handler declares.
func NewLLMClassifier(client LLMClient, model string, registry *Registry) *LLMClassifier {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if registry == nil {
		panic("conversation: intent registry cannot be nil")
	}
	return &LLMClassifier{client: client, model: model, registry: registry, now: time.Now}
}

func (c *LLMClassifier) systemPrompt() string {
	var intents strings.Builder
	for _, intent := range AllIntents() {
		fmt.Fprintf(&intents, "- %s: %s", intent, intentDescriptions[intent])
		h, err := c.registry.Lookup(intent)
		if err == nil {
			var fields []string
			for _, spec := range h.Slots() {
				fields = append(fields, fmt.Sprintf("%s (%s)", spec.Name, spec.Kind))
			}
			if len(fields) > 0 {
				fmt.Fprintf(&intents, ". Campos: %s", strings.Join(fields, ", "))
			}
		}
		intents.WriteString("\n")
	}
	return fmt.Sprintf(classifierPrompt, c.now().Format("2006-01-02"), intents.String())
}

func (c *LLMClassifier) Classify(ctx context.Context, req ClassificationRequest) (ClassificationResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return ClassificationResult{Intent: IntentUnknown}, nil
	}

	messages := historyMessages(req.History)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: text})
	resp, err := c.client.Complete(ctx, LLMRequest{
		Model:       c.model,
		System:      []string{c.systemPrompt()},
		Messages:    messages,
		MaxTokens:   400,
		Temperature: 0,
	})
	if err != nil {
		return ClassificationResult{}, fmt.Errorf("conversation: classify: %w", err)
	}
	return parseClassification(resp.Text), nil
}

// parseClassification never fails: malformed output reads as an unknown intent.
func parseClassification(raw string) ClassificationResult {
	content := strings.TrimSpace(raw)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}

	var decoded struct {
		Intent        string         `json:"intent"`
		Confidence    float64        `json:"confidence"`
		Slots         map[string]any `json:"slots"`
		Missing       []string       `json:"missing"`
		Clarification string         `json:"clarification"`
	}
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return ClassificationResult{Intent: IntentUnknown}
	}

	result := ClassificationResult{
		Intent:        ParseIntent(strings.TrimSpace(decoded.Intent)),
		Confidence:    decoded.Confidence,
		Slots:         decoded.Slots,
		Missing:       decoded.Missing,
		Clarification: strings.TrimSpace(decoded.Clarification),
	}
	switch {
	case result.Confidence < 0:
		result.Confidence = 0
	case result.Confidence > 1:
		result.Confidence = 1
	}
	return result
}

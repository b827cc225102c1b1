package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/finchat/internal/finance"
)

// ConsultingHandler answers questions about the current month. It has no
// slots and never asks for confirmation.
type ConsultingHandler struct {
	reader  finance.Reader
	advisor Advisor
	cfg     handlerConfig
}

var _ IntentHandler = (*ConsultingHandler)(nil)

func NewConsultingHandler(reader finance.Reader, advisor Advisor, opts ...HandlerOption) *ConsultingHandler {
	if reader == nil {
		panic("conversation: finance reader cannot be nil")
	}
	if advisor == nil {
		panic("conversation: advisor cannot be nil")
	}
	return &ConsultingHandler{reader: reader, advisor: advisor, cfg: newHandlerConfig(opts)}
}

func (h *ConsultingHandler) Intent() IntentType { return IntentFinancialConsulting }

func (h *ConsultingHandler) Slots() []SlotSpec { return nil }

func (h *ConsultingHandler) MissingFields(state *State) []string { return nil }

func (h *ConsultingHandler) BuildConfirmationMessage(state *State) string { return "" }

// Summary aggregates the current month for the advisor.
func (h *ConsultingHandler) Summary(ctx context.Context) (finance.MonthSummary, error) {
	today := h.cfg.today()
	month, year := today.Month(), today.Year()

	transactions, err := h.reader.ListTransactions(ctx, month, year)
	if err != nil {
		return finance.MonthSummary{}, fmt.Errorf("conversation: list transactions: %w", err)
	}
	budgets, err := h.reader.ListBudgets(ctx, month, year)
	if err != nil {
		return finance.MonthSummary{}, fmt.Errorf("conversation: list budgets: %w", err)
	}
	categories, err := h.reader.ListCategories(ctx)
	if err != nil {
		return finance.MonthSummary{}, fmt.Errorf("conversation: list categories: %w", err)
	}
	return finance.Summarize(month, year, transactions, budgets, categories), nil
}

func (h *ConsultingHandler) Handle(ctx context.Context, state *State) (string, error) {
	summary, err := h.Summary(ctx)
	if err != nil {
		return "", err
	}
	answer, err := h.advisor.Advise(ctx, state.LastMessage, summary.Compact())
	if err != nil {
		return "", err
	}
	state.Phase = PhaseIdle
	return answer, nil
}

func (h *ConsultingHandler) HandleConfirmation(ctx context.Context, state *State, confirmed bool) (string, error) {
	return "Não há nada pendente para confirmar.", nil
}

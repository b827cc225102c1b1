package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/finchat/internal/finance"
)

const (
	SlotDescription  = "description"
	SlotAmount       = "amount"
	SlotCategoryName = "categoryName"
	SlotDueDate      = "dueDate"
	SlotIsPaid       = "isPaid"
)

// expenseStore is the slice of finance.Store the expense flow touches.
type expenseStore interface {
	FindCategoryByName(ctx context.Context, name string) (*finance.Category, error)
	CreateCategory(ctx context.Context, name, color string) (*finance.Category, error)
	CreateExpense(ctx context.Context, in finance.ExpenseInput) (*finance.Transaction, error)
}

// ExpenseHandler records a plain expense, creating its category when needed.
type ExpenseHandler struct {
	store expenseStore
	cfg   handlerConfig
	slots []SlotSpec
}

var _ IntentHandler = (*ExpenseHandler)(nil)

func NewExpenseHandler(store expenseStore, opts ...HandlerOption) *ExpenseHandler {
	if store == nil {
		panic("conversation: expense store cannot be nil")
	}
	return &ExpenseHandler{
		store: store,
		cfg:   newHandlerConfig(opts),
		slots: []SlotSpec{
			{Name: SlotDescription, Kind: KindString, Required: true, Question: "Qual a descrição da despesa?", Check: nonEmptyText},
			{Name: SlotAmount, Kind: KindNumber, Required: true, Question: "Qual o valor da despesa?", Hint: "Ex.: 50 ou 1.234,56", Check: positiveNumber},
			{Name: SlotCategoryName, Kind: KindString, Required: true, Question: "Qual a categoria da despesa?", Check: nonEmptyText},
			{Name: SlotDueDate, Kind: KindDate, Question: "Qual a data de vencimento?", Hint: "Ex.: hoje, ontem ou 10/03/2026"},
			{Name: SlotIsPaid, Kind: KindBool, Question: "A despesa já está paga?", Hint: "Responda sim ou não"},
		},
	}
}

func (h *ExpenseHandler) Intent() IntentType { return IntentCreateExpense }

func (h *ExpenseHandler) Slots() []SlotSpec { return h.slots }

func (h *ExpenseHandler) MissingFields(state *State) []string {
	return requiredMissing(h.slots, state)
}

func (h *ExpenseHandler) BuildConfirmationMessage(state *State) string {
	amount, _ := state.Data.Number(SlotAmount)
	due, ok := state.Data.Date(SlotDueDate)
	if !ok {
		due = h.cfg.today()
	}
	paid, _ := state.Data.Bool(SlotIsPaid)
	status := "pendente"
	if paid {
		status = "paga"
	}
	return fmt.Sprintf("Confirma a despesa \"%s\" de %s na categoria %s, vencimento %s (%s)? Responda sim ou não.",
		state.Data.Text(SlotDescription),
		formatMoney(amount),
		state.Data.Text(SlotCategoryName),
		formatDate(due),
		status,
	)
}

func (h *ExpenseHandler) Handle(ctx context.Context, state *State) (string, error) {
	if missing := h.MissingFields(state); len(missing) > 0 {
		state.Phase = PhaseCollectingData
		return askFor(h.slots, missing[0]), nil
	}
	if !state.Data.Has(SlotDueDate) {
		state.SetSlot(SlotDueDate, DateValue(h.cfg.today()))
	}
	if !state.Data.Has(SlotIsPaid) {
		state.SetSlot(SlotIsPaid, BoolValue(false))
	}
	state.Phase = PhaseAwaitingConfirmation
	return h.BuildConfirmationMessage(state), nil
}

func (h *ExpenseHandler) HandleConfirmation(ctx context.Context, state *State, confirmed bool) (string, error) {
	if state.Phase != PhaseAwaitingConfirmation {
		return "", ErrNotAwaitingConfirmation
	}
	if !confirmed {
		return "Ok, a despesa não foi registrada.", nil
	}

	name := state.Data.Text(SlotCategoryName)
	logger := h.cfg.logger.With("conversation_id", state.ConversationID, "intent", string(h.Intent()))

	category, err := h.store.FindCategoryByName(ctx, name)
	if errors.Is(err, finance.ErrNotFound) {
		category, err = h.store.CreateCategory(ctx, name, h.cfg.categoryColor)
		if err == nil {
			logger.Info("created category on the fly", "category", category.Name)
		}
	}
	if err != nil {
		logger.Error("failed to resolve category", "error", err)
		return "Desculpe, não consegui registrar a despesa agora. Tente novamente em instantes.", nil
	}

	amount, _ := state.Data.Number(SlotAmount)
	due, _ := state.Data.Date(SlotDueDate)
	paid, _ := state.Data.Bool(SlotIsPaid)
	tx, err := h.store.CreateExpense(ctx, finance.ExpenseInput{
		Description: state.Data.Text(SlotDescription),
		Amount:      amount,
		DueDate:     due,
		CategoryID:  category.ID,
		IsPaid:      paid,
	})
	if err != nil {
		logger.Error("failed to create expense", "error", err)
		if finance.IsValidation(err) {
			return "Não consegui registrar a despesa: alguns dados são inválidos. Vamos começar de novo?", nil
		}
		return "Desculpe, não consegui registrar a despesa agora. Tente novamente em instantes.", nil
	}
	logger.Info("expense created", "transaction_id", tx.ID.String())
	return fmt.Sprintf("Despesa \"%s\" de %s registrada em %s.", tx.Description, formatMoney(tx.Amount), category.Name), nil
}

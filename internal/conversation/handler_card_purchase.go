package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/finchat/internal/finance"
	"github.com/wolfman30/finchat/internal/invoice"
)

const (
	SlotCardName     = "cardName"
	SlotInstallments = "installments"
	SlotPurchaseDate = "purchaseDate"

	// Filled by the handler once cardName resolves to a single card.
	slotCardID     = "cardId"
	slotClosingDay = "closingDay"
	slotDueDay     = "dueDay"
)

type cardStore interface {
	ListCards(ctx context.Context) ([]finance.Card, error)
	FindCardsByName(ctx context.Context, fragment string) ([]finance.Card, error)
	CreateCardTransaction(ctx context.Context, in finance.CardTransactionInput) ([]finance.Transaction, error)
}

// CardPurchaseHandler records a credit card purchase against the right invoice.
type CardPurchaseHandler struct {
	store cardStore
	cfg   handlerConfig
	slots []SlotSpec
}

var _ IntentHandler = (*CardPurchaseHandler)(nil)

func NewCardPurchaseHandler(store cardStore, opts ...HandlerOption) *CardPurchaseHandler {
	if store == nil {
		panic("conversation: card store cannot be nil")
	}
	return &CardPurchaseHandler{
		store: store,
		cfg:   newHandlerConfig(opts),
		slots: []SlotSpec{
			{Name: SlotDescription, Kind: KindString, Required: true, Question: "O que foi comprado?", Check: nonEmptyText},
			{Name: SlotAmount, Kind: KindNumber, Required: true, Question: "Qual o valor total da compra?", Hint: "Ex.: 300 ou 1.234,56", Check: positiveNumber},
			{Name: SlotCardName, Kind: KindString, Required: true, Question: "Em qual cartão foi a compra?", Check: nonEmptyText},
			{Name: SlotInstallments, Kind: KindNumber, Question: "Em quantas parcelas?", Hint: fmt.Sprintf("Um número inteiro de 1 a %d", finance.MaxInstallments), Check: validInstallments},
			{Name: SlotPurchaseDate, Kind: KindDate, Question: "Qual a data da compra?", Hint: "Ex.: hoje, ontem ou 10/03/2026"},
		},
	}
}

func validInstallments(v SlotValue) error {
	d, ok := v.AsNumber()
	if !ok || !d.IsInteger() || d.LessThan(decimal.NewFromInt(1)) || d.GreaterThan(decimal.NewFromInt(finance.MaxInstallments)) {
		return fmt.Errorf("deve ser um número inteiro de 1 a %d", finance.MaxInstallments)
	}
	return nil
}

func (h *CardPurchaseHandler) Intent() IntentType { return IntentCreateCardPurchase }

func (h *CardPurchaseHandler) Slots() []SlotSpec { return h.slots }

// MissingFields also reports installments when the chosen count would leave
// some installment below one cent, so the orchestrator asks for it again.
func (h *CardPurchaseHandler) MissingFields(state *State) []string {
	missing := requiredMissing(h.slots, state)
	if len(missing) == 0 && !installmentsFit(state) {
		missing = append(missing, SlotInstallments)
	}
	return missing
}

func installmentsFit(state *State) bool {
	amount, ok := state.Data.Number(SlotAmount)
	n, hasN := state.Data.Number(SlotInstallments)
	if !ok || !hasN {
		return true
	}
	return finance.CoversInstallments(amount, int(n.IntPart()))
}

// pickCard prefers an exact case-insensitive name match, the first one when
// names differ only in case; otherwise a single candidate wins. Zero or
// several partial candidates are ambiguous.
func pickCard(cards []finance.Card, fragment string) (finance.Card, bool) {
	fragment = strings.TrimSpace(fragment)
	for _, c := range cards {
		if strings.EqualFold(strings.TrimSpace(c.Name), fragment) {
			return c, true
		}
	}
	if len(cards) == 1 {
		return cards[0], true
	}
	return finance.Card{}, false
}

func (h *CardPurchaseHandler) Handle(ctx context.Context, state *State) (string, error) {
	if missing := h.MissingFields(state); len(missing) > 0 {
		state.Phase = PhaseCollectingData
		if missing[0] == SlotInstallments {
			amount, _ := state.Data.Number(SlotAmount)
			n, _ := state.Data.Number(SlotInstallments)
			return fmt.Sprintf("Não dá para dividir %s em %d parcelas. %s", formatMoney(amount), n.IntPart(), askFor(h.slots, SlotInstallments)), nil
		}
		return askFor(h.slots, missing[0]), nil
	}

	if !state.Data.Has(slotCardID) {
		fragment := state.Data.Text(SlotCardName)
		candidates, err := h.store.FindCardsByName(ctx, fragment)
		if err != nil {
			return "", fmt.Errorf("conversation: find cards: %w", err)
		}
		card, ok := pickCard(candidates, fragment)
		if !ok {
			return h.askCardAgain(ctx, state, fragment, candidates)
		}
		state.SetSlot(SlotCardName, StringValue(card.Name))
		state.SetSlot(slotCardID, StringValue(card.ID.String()))
		state.SetSlot(slotClosingDay, NumberValue(decimal.NewFromInt(int64(card.ClosingDay))))
		state.SetSlot(slotDueDay, NumberValue(decimal.NewFromInt(int64(card.DueDay))))
	}

	if !state.Data.Has(SlotInstallments) {
		state.SetSlot(SlotInstallments, NumberValue(decimal.NewFromInt(1)))
	}
	if !state.Data.Has(SlotPurchaseDate) {
		state.SetSlot(SlotPurchaseDate, DateValue(h.cfg.today()))
	}
	state.Phase = PhaseAwaitingConfirmation
	return h.BuildConfirmationMessage(state), nil
}

// askCardAgain drops the unresolved card name and lists the known cards.
func (h *CardPurchaseHandler) askCardAgain(ctx context.Context, state *State, fragment string, candidates []finance.Card) (string, error) {
	state.DeleteSlot(SlotCardName)
	options := candidates
	if len(options) == 0 {
		all, err := h.store.ListCards(ctx)
		if err != nil {
			return "", fmt.Errorf("conversation: list cards: %w", err)
		}
		if len(all) == 0 {
			state.Phase = PhaseIdle
			return "Você ainda não tem cartões cadastrados. Cadastre um cartão antes de registrar compras nele.", nil
		}
		options = all
	}
	names := make([]string, 0, len(options))
	for _, c := range options {
		names = append(names, c.Name)
	}
	state.Phase = PhaseCollectingData
	if len(candidates) > 1 {
		return fmt.Sprintf("Encontrei mais de um cartão para \"%s\": %s. Qual deles?", fragment, strings.Join(names, ", ")), nil
	}
	return fmt.Sprintf("Não encontrei o cartão \"%s\". Seus cartões: %s. Qual deles?", fragment, strings.Join(names, ", ")), nil
}

type cardPurchase struct {
	cardID       uuid.UUID
	description  string
	amount       decimal.Decimal
	installments int
	date         time.Time
	period       invoice.Period
}

func (h *CardPurchaseHandler) purchase(state *State) (cardPurchase, error) {
	cardID, err := uuid.Parse(state.Data.Text(slotCardID))
	if err != nil {
		return cardPurchase{}, fmt.Errorf("conversation: card not resolved: %w", err)
	}
	closing, _ := state.Data.Number(slotClosingDay)
	due, _ := state.Data.Number(slotDueDay)
	if err := invoice.Validate(int(closing.IntPart()), int(due.IntPart())); err != nil {
		return cardPurchase{}, err
	}
	amount, _ := state.Data.Number(SlotAmount)
	installments := 1
	if n, ok := state.Data.Number(SlotInstallments); ok {
		installments = int(n.IntPart())
	}
	date, ok := state.Data.Date(SlotPurchaseDate)
	if !ok {
		date = h.cfg.today()
	}
	return cardPurchase{
		cardID:       cardID,
		description:  state.Data.Text(SlotDescription),
		amount:       amount,
		installments: installments,
		date:         date,
		period:       invoice.Calculate(date, int(closing.IntPart()), int(due.IntPart())),
	}, nil
}

func (h *CardPurchaseHandler) BuildConfirmationMessage(state *State) string {
	p, err := h.purchase(state)
	if err != nil {
		return "Não consegui identificar o cartão desta compra."
	}
	parts := finance.SplitInstallments(p.amount, p.installments)
	plan := "à vista"
	if p.installments > 1 {
		plan = fmt.Sprintf("em %dx de %s", p.installments, formatMoney(parts[len(parts)-1]))
		if !parts[0].Equal(parts[len(parts)-1]) {
			plan += fmt.Sprintf(" (1ª parcela %s)", formatMoney(parts[0]))
		}
	}
	return fmt.Sprintf("Confirma a compra \"%s\" de %s no cartão %s, %s, em %s, na fatura de %s? Responda sim ou não.",
		p.description,
		formatMoney(p.amount),
		state.Data.Text(SlotCardName),
		plan,
		formatDate(p.date),
		p.period.Label(),
	)
}

func (h *CardPurchaseHandler) HandleConfirmation(ctx context.Context, state *State, confirmed bool) (string, error) {
	if state.Phase != PhaseAwaitingConfirmation {
		return "", ErrNotAwaitingConfirmation
	}
	if !confirmed {
		return "Ok, a compra não foi registrada.", nil
	}
	logger := h.cfg.logger.With("conversation_id", state.ConversationID, "intent", string(h.Intent()))

	p, err := h.purchase(state)
	if err != nil {
		logger.Error("invalid card purchase state", "error", err)
		return "Desculpe, não consegui registrar a compra. Vamos começar de novo?", nil
	}
	records, err := h.store.CreateCardTransaction(ctx, finance.CardTransactionInput{
		CardID:           p.cardID,
		Description:      p.description,
		Amount:           p.amount,
		Date:             p.date,
		InstallmentCount: p.installments,
		InvoiceYear:      p.period.Year,
		InvoiceMonth:     int(p.period.Month),
	})
	if err != nil {
		logger.Error("failed to create card transaction", "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return "O registro da compra demorou demais e não foi concluído. Tente novamente.", nil
		}
		return "Desculpe, não consegui registrar a compra agora. Tente novamente em instantes.", nil
	}
	logger.Info("card purchase created", "installments", len(records), "invoice", p.period.String())
	if len(records) > 1 {
		return fmt.Sprintf("Compra \"%s\" registrada no cartão %s em %d parcelas, a partir da fatura de %s.",
			p.description, state.Data.Text(SlotCardName), len(records), p.period.Label()), nil
	}
	return fmt.Sprintf("Compra \"%s\" de %s registrada no cartão %s, fatura de %s.",
		p.description, formatMoney(p.amount), state.Data.Text(SlotCardName), p.period.Label()), nil
}

package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/finchat/internal/finance"
	"github.com/wolfman30/finchat/pkg/logging"
)

func expenseClassification() ClassificationResult {
	return ClassificationResult{
		Intent:     IntentCreateExpense,
		Confidence: 0.92,
		Slots: map[string]any{
			"amount":      50.0,
			"description": "mercado",
			"bogus":       "dropped",
		},
	}
}

func TestOrchestrator_ExpenseHappyPath(t *testing.T) {
	h := newHarness(t, nil)
	h.classifier.results["gastei 50 no mercado"] = expenseClassification()

	reply := h.send(t, "gastei 50 no mercado")
	assert.Equal(t, "Qual a categoria da despesa?", reply.Text)
	assert.Equal(t, PhaseCollectingData, reply.Phase)

	state := h.state(t)
	assert.Equal(t, IntentCreateExpense, state.PendingIntent)
	assert.False(t, state.Data.Has("bogus"))
	amount, ok := state.Data.Number(SlotAmount)
	require.True(t, ok)
	assert.Equal(t, "50.00", amount.StringFixed(2))

	reply = h.send(t, "alimentação")
	assert.Equal(t, PhaseAwaitingConfirmation, reply.Phase)
	assert.Contains(t, reply.Text, "R$ 50.00")
	assert.Contains(t, reply.Text, "alimentação")
	assert.Contains(t, reply.Text, "31/03/2026")
	assert.Contains(t, reply.Text, "pendente")
	assert.Empty(t, h.finance.Transactions())

	reply = h.send(t, "Sim!")
	assert.Equal(t, PhaseIdle, reply.Phase)
	assert.Contains(t, reply.Text, "registrada")

	txs := h.finance.Transactions()
	require.Len(t, txs, 1)
	assert.False(t, txs[0].IsPaid)
	assert.Equal(t, "50.00", txs[0].Amount.StringFixed(2))

	cat, err := h.finance.FindCategoryByName(context.Background(), "Alimentação")
	require.NoError(t, err)
	assert.Equal(t, DefaultCategoryColor, cat.Color)
	assert.Equal(t, cat.ID, *txs[0].CategoryID)

	state = h.state(t)
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Empty(t, state.PendingIntent)
	assert.Empty(t, state.Data)
	assert.Equal(t, 1, h.classifier.callCount())
}

func TestOrchestrator_DeclineWritesNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.classifier.results["gastei 50 no mercado"] = expenseClassification()

	h.send(t, "gastei 50 no mercado")
	h.send(t, "alimentação")
	reply := h.send(t, "não")

	assert.Equal(t, PhaseIdle, reply.Phase)
	assert.Contains(t, reply.Text, "não foi registrada")
	assert.Empty(t, h.finance.Transactions())
}

func TestOrchestrator_YesAfterCompletionIsClassifiedFresh(t *testing.T) {
	h := newHarness(t, nil)
	h.classifier.results["gastei 50 no mercado"] = expenseClassification()

	h.send(t, "gastei 50 no mercado")
	h.send(t, "alimentação")
	h.send(t, "sim")
	require.Len(t, h.finance.Transactions(), 1)

	reply := h.send(t, "sim")
	assert.Equal(t, clarificationReply, reply.Text)
	assert.Equal(t, PhaseIdle, reply.Phase)
	assert.Len(t, h.finance.Transactions(), 1)
	assert.Equal(t, 2, h.classifier.callCount())
}

func TestOrchestrator_AmbiguousConfirmationRepeatsPrompt(t *testing.T) {
	h := newHarness(t, nil)
	h.classifier.results["gastei 50 no mercado"] = expenseClassification()

	h.send(t, "gastei 50 no mercado")
	h.send(t, "alimentação")
	reply := h.send(t, "talvez amanhã")

	assert.Equal(t, PhaseAwaitingConfirmation, reply.Phase)
	assert.True(t, strings.HasPrefix(reply.Text, "Não entendi. Confirma a despesa"))
	assert.Empty(t, h.finance.Transactions())
	assert.Equal(t, 1, h.classifier.callCount())
}

func TestOrchestrator_CoercionFailureRepeatsQuestion(t *testing.T) {
	h := newHarness(t, nil)
	h.classifier.results["quero lançar uma despesa de luz"] = ClassificationResult{
		Intent:     IntentCreateExpense,
		Confidence: 0.8,
		Slots:      map[string]any{"description": "conta de luz", "categoryName": "Casa"},
	}

	reply := h.send(t, "quero lançar uma despesa de luz")
	assert.Equal(t, "Qual o valor da despesa?", reply.Text)

	reply = h.send(t, "não sei")
	assert.Equal(t, PhaseCollectingData, reply.Phase)
	assert.Contains(t, reply.Text, "Qual o valor da despesa?")
	assert.Contains(t, reply.Text, "Ex.: 50")

	reply = h.send(t, "0")
	assert.Equal(t, PhaseCollectingData, reply.Phase)
	assert.Contains(t, reply.Text, "maior que zero")

	reply = h.send(t, "R$ 1.234,56")
	assert.Equal(t, PhaseAwaitingConfirmation, reply.Phase)
	assert.Contains(t, reply.Text, "R$ 1234.56")
}

func TestOrchestrator_CancelDuringCollection(t *testing.T) {
	h := newHarness(t, nil)
	h.classifier.results["gastei 50 no mercado"] = expenseClassification()

	h.send(t, "gastei 50 no mercado")
	reply := h.send(t, "cancelar")

	assert.Equal(t, cancelledReply, reply.Text)
	state := h.state(t)
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Empty(t, state.Data)
}

func TestOrchestrator_LowConfidenceAsksForClarification(t *testing.T) {
	h := newHarness(t, nil)
	h.classifier.results["hmm"] = ClassificationResult{
		Intent:        IntentCreateExpense,
		Confidence:    0.3,
		Clarification: "Você quer registrar uma despesa?",
	}

	reply := h.send(t, "hmm")
	assert.Equal(t, "Você quer registrar uma despesa?", reply.Text)
	state := h.state(t)
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Empty(t, state.PendingIntent)
}

func TestOrchestrator_CardPurchaseAmbiguityRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	h.finance.AddCard(finance.Card{Name: "Nubank", ClosingDay: 30, DueDay: 7})
	h.finance.AddCard(finance.Card{Name: "Nubank Ultravioleta", ClosingDay: 5, DueDay: 12})
	h.finance.AddCard(finance.Card{Name: "Inter", ClosingDay: 1, DueDay: 10})
	h.classifier.results["comprei um tênis de 300 em 3x no nu"] = ClassificationResult{
		Intent:     IntentCreateCardPurchase,
		Confidence: 0.95,
		Slots: map[string]any{
			"description":  "tênis",
			"amount":       "300",
			"cardName":     "nu",
			"installments": 3.0,
		},
	}

	reply := h.send(t, "comprei um tênis de 300 em 3x no nu")
	assert.Equal(t, PhaseCollectingData, reply.Phase)
	assert.Contains(t, reply.Text, "Nubank, Nubank Ultravioleta")
	assert.False(t, h.state(t).Data.Has(SlotCardName))

	reply = h.send(t, "nubank")
	require.Equal(t, PhaseAwaitingConfirmation, reply.Phase)
	assert.Contains(t, reply.Text, "cartão Nubank,")
	assert.Contains(t, reply.Text, "3x de R$ 100.00")
	assert.Contains(t, reply.Text, "05/2026")

	reply = h.send(t, "sim")
	assert.Equal(t, PhaseIdle, reply.Phase)

	txs := h.finance.Transactions()
	require.Len(t, txs, 3)
	for i, tx := range txs {
		assert.Equal(t, 2026, tx.InvoiceYear)
		assert.Equal(t, 5+i, tx.InvoiceMonth)
		assert.Equal(t, "100.00", tx.Amount.StringFixed(2))
	}
}

func TestOrchestrator_UnknownCardListsCards(t *testing.T) {
	h := newHarness(t, nil)
	h.finance.AddCard(finance.Card{Name: "Inter", ClosingDay: 1, DueDay: 10})
	h.classifier.results["comprei um livro de 80 no itaú"] = ClassificationResult{
		Intent:     IntentCreateCardPurchase,
		Confidence: 0.9,
		Slots:      map[string]any{"description": "livro", "amount": 80.0, "cardName": "itaú"},
	}

	reply := h.send(t, "comprei um livro de 80 no itaú")
	assert.Contains(t, reply.Text, "Não encontrei o cartão")
	assert.Contains(t, reply.Text, "Inter")

	reply = h.send(t, "inter")
	assert.Equal(t, PhaseAwaitingConfirmation, reply.Phase)
	assert.Contains(t, reply.Text, "à vista")
}

func TestOrchestrator_WriteFailureApologizesAndResets(t *testing.T) {
	mem := finance.NewMemoryStore()
	h := newHarness(t, failingWrites{MemoryStore: mem})
	h.classifier.results["gastei 50 no mercado"] = expenseClassification()

	h.send(t, "gastei 50 no mercado")
	h.send(t, "alimentação")
	reply := h.send(t, "sim")

	assert.Equal(t, PhaseIdle, reply.Phase)
	assert.Contains(t, reply.Text, "não consegui registrar")
	assert.Empty(t, mem.Transactions())
	assert.Equal(t, PhaseIdle, h.state(t).Phase)
}

func TestOrchestrator_ClassifierErrorApologizes(t *testing.T) {
	h := newHarness(t, nil)
	h.classifier.err = errors.New("llm unavailable")

	reply := h.send(t, "gastei 50 no mercado")
	assert.Equal(t, genericFailureReply, reply.Text)
	assert.Equal(t, PhaseIdle, h.state(t).Phase)
}

func TestOrchestrator_RecoversFromPanic(t *testing.T) {
	h := newHarness(t, nil)
	h.classifier.panicOn = "boom"

	reply := h.send(t, "boom")
	assert.Equal(t, genericFailureReply, reply.Text)

	state := h.state(t)
	assert.Equal(t, PhaseIdle, state.Phase)
	require.Len(t, state.History, 2)
	assert.Equal(t, genericFailureReply, state.History[1].Content)
}

func TestOrchestrator_ConsultingCompletesInOneTurn(t *testing.T) {
	h := newHarness(t, nil)
	h.finance.AddTransaction(finance.Transaction{
		Type:   finance.TypeExpense,
		Amount: dec("50"),
		Date:   fixedNow,
	})
	h.classifier.results["quanto gastei este mês?"] = ClassificationResult{
		Intent:     IntentFinancialConsulting,
		Confidence: 0.99,
	}

	reply := h.send(t, "quanto gastei este mês?")
	assert.Equal(t, "Você gastou pouco este mês.", reply.Text)
	assert.Equal(t, PhaseIdle, reply.Phase)
	assert.Equal(t, "quanto gastei este mês?", h.advisor.question)
	assert.Contains(t, h.advisor.summary, "Despesas: R$ 50.00")
	assert.Empty(t, h.state(t).PendingIntent)
}

func TestOrchestrator_HistoryIsBoundedAndFedToClassifier(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.cfg.historySize = 4
	for i := 0; i < 3; i++ {
		h.send(t, "oi")
	}
	state := h.state(t)
	assert.Len(t, state.History, 4)

	calls := h.classifier.calls
	require.Len(t, calls, 3)
	assert.Empty(t, calls[0].History)
	assert.Len(t, calls[2].History, 4)
}

func TestOrchestrator_RejectsMissingConversationID(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.HandleMessage(context.Background(), InboundMessage{Text: "oi"})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestOrchestrator_SerializesSameConversation(t *testing.T) {
	h := newHarness(t, nil)
	blocking := &blockingClassifier{release: make(chan struct{}), entered: make(chan struct{}, 2)}
	registry := h.orch.registry
	orch := NewOrchestrator(h.states, blocking, registry, logging.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = orch.HandleMessage(context.Background(), InboundMessage{ConversationID: testConversation, Text: "oi"})
		}()
	}

	<-blocking.entered
	select {
	case <-blocking.entered:
		t.Fatal("second message entered the classifier while the first held the lock")
	case <-time.After(50 * time.Millisecond):
	}
	close(blocking.release)
	wg.Wait()
	assert.Equal(t, 2, len(blocking.entered)+1)
}

type blockingClassifier struct {
	release chan struct{}
	entered chan struct{}
}

func (b *blockingClassifier) Classify(ctx context.Context, req ClassificationRequest) (ClassificationResult, error) {
	b.entered <- struct{}{}
	<-b.release
	return ClassificationResult{Intent: IntentUnknown}, nil
}

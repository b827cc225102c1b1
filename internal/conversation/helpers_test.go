package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/finchat/internal/finance"
	"github.com/wolfman30/finchat/pkg/logging"
)

var fixedNow = time.Date(2026, 3, 31, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type scriptedClassifier struct {
	mu      sync.Mutex
	results map[string]ClassificationResult
	err     error
	panicOn string
	calls   []ClassificationRequest
}

func (c *scriptedClassifier) Classify(ctx context.Context, req ClassificationRequest) (ClassificationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	if c.panicOn != "" && req.Text == c.panicOn {
		panic("classifier exploded")
	}
	if c.err != nil {
		return ClassificationResult{}, c.err
	}
	if r, ok := c.results[req.Text]; ok {
		return r, nil
	}
	return ClassificationResult{Intent: IntentUnknown}, nil
}

func (c *scriptedClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fakeAdvisor struct {
	answer   string
	err      error
	question string
	summary  string
}

func (a *fakeAdvisor) Advise(ctx context.Context, question, summary string) (string, error) {
	a.question = question
	a.summary = summary
	return a.answer, a.err
}

type stubLLM struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []LLMRequest
}

func (s *stubLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.text}, nil
}

// failingWrites rejects every write but serves reads from the memory store.
type failingWrites struct {
	*finance.MemoryStore
}

var errDatabaseDown = errors.New("database down")

func (f failingWrites) CreateExpense(ctx context.Context, in finance.ExpenseInput) (*finance.Transaction, error) {
	return nil, errDatabaseDown
}

func (f failingWrites) CreateCardTransaction(ctx context.Context, in finance.CardTransactionInput) ([]finance.Transaction, error) {
	return nil, errDatabaseDown
}

type harness struct {
	orch       *Orchestrator
	finance    *finance.MemoryStore
	states     *MemoryStateStore
	classifier *scriptedClassifier
	advisor    *fakeAdvisor
}

func newHarness(t *testing.T, store finance.Store) *harness {
	t.Helper()
	mem := finance.NewMemoryStore()
	if store == nil {
		store = mem
	} else if fw, ok := store.(failingWrites); ok {
		mem = fw.MemoryStore
	}

	opts := []HandlerOption{WithHandlerClock(fixedClock), WithHandlerLogger(logging.Discard())}
	advisor := &fakeAdvisor{answer: "Você gastou pouco este mês."}
	registry, err := NewRegistry(
		NewExpenseHandler(store, opts...),
		NewCardPurchaseHandler(store, opts...),
		NewConsultingHandler(store, advisor, opts...),
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	states := NewMemoryStateStore(WithClock(fixedClock))
	classifier := &scriptedClassifier{results: map[string]ClassificationResult{}}
	orch := NewOrchestrator(states, classifier, registry, logging.Discard(),
		WithOrchestratorClock(fixedClock),
		WithClassifierTimeout(time.Second),
		WithWriteTimeout(time.Second),
	)
	return &harness{orch: orch, finance: mem, states: states, classifier: classifier, advisor: advisor}
}

const testConversation = "telegram:42"

func (h *harness) send(t *testing.T, text string) Reply {
	t.Helper()
	reply, err := h.orch.HandleMessage(context.Background(), InboundMessage{
		ConversationID: testConversation,
		SenderID:       "7",
		Text:           text,
		ReceivedAt:     fixedNow,
	})
	if err != nil {
		t.Fatalf("handle %q: %v", text, err)
	}
	return reply
}

func (h *harness) state(t *testing.T) *State {
	t.Helper()
	state, err := h.states.Get(context.Background(), testConversation)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	return state
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

package conversation

import (
	"context"
	"errors"
	"fmt"
)

// IntentType is the closed set of things a user can ask for.
type IntentType string

const (
	IntentCreateExpense       IntentType = "create_expense"
	IntentCreateCardPurchase  IntentType = "create_card_purchase"
	IntentFinancialConsulting IntentType = "financial_consulting"
	IntentUnknown             IntentType = "unknown"
)

// AllIntents lists every actionable intent. IntentUnknown is not included.
func AllIntents() []IntentType {
	return []IntentType{
		IntentCreateExpense,
		IntentCreateCardPurchase,
		IntentFinancialConsulting,
	}
}

// ParseIntent maps free text to an IntentType, returning IntentUnknown for
// anything outside the closed set.
func ParseIntent(raw string) IntentType {
	for _, intent := range AllIntents() {
		if string(intent) == raw {
			return intent
		}
	}
	return IntentUnknown
}

// ErrUnknownIntent is returned when no handler is registered for an intent.
var ErrUnknownIntent = errors.New("conversation: unknown intent")

// ClassificationRequest carries the message and recent history to the classifier.
type ClassificationRequest struct {
	History []Turn
	Text    string
}

// ClassificationResult is the classifier's reading of one message. Slots are
// raw values keyed by slot name; the orchestrator coerces them.
type ClassificationResult struct {
	Intent        IntentType
	Confidence    float64
	Slots         map[string]any
	Missing       []string
	Clarification string
}

// Classifier is the NLP boundary.
type Classifier interface {
	Classify(ctx context.Context, req ClassificationRequest) (ClassificationResult, error)
}

// IntentHandler drives one intent through collection, confirmation and execution.
type IntentHandler interface {
	Intent() IntentType
	Slots() []SlotSpec
	// MissingFields returns required slots not yet filled, or holding a value
	// that must be asked again, in asking order.
	MissingFields(state *State) []string
	BuildConfirmationMessage(state *State) string
	// Handle advances the state and returns the next reply.
	Handle(ctx context.Context, state *State) (string, error)
	// HandleConfirmation executes or abandons the pending operation.
	HandleConfirmation(ctx context.Context, state *State, confirmed bool) (string, error)
}

// Registry maps every intent to exactly one handler.
type Registry struct {
	handlers map[IntentType]IntentHandler
}

// NewRegistry fails unless every intent in AllIntents has exactly one handler.
func NewRegistry(handlers ...IntentHandler) (*Registry, error) {
	known := make(map[IntentType]bool)
	for _, intent := range AllIntents() {
		known[intent] = true
	}
	r := &Registry{handlers: make(map[IntentType]IntentHandler, len(handlers))}
	for _, h := range handlers {
		if h == nil {
			return nil, errors.New("conversation: nil intent handler")
		}
		intent := h.Intent()
		if !known[intent] {
			return nil, fmt.Errorf("conversation: handler registered for unsupported intent %q", intent)
		}
		if _, dup := r.handlers[intent]; dup {
			return nil, fmt.Errorf("conversation: duplicate handler for intent %q", intent)
		}
		r.handlers[intent] = h
	}
	for _, intent := range AllIntents() {
		if _, ok := r.handlers[intent]; !ok {
			return nil, fmt.Errorf("conversation: no handler for intent %q", intent)
		}
	}
	return r, nil
}

// Lookup returns the handler for intent or ErrUnknownIntent.
func (r *Registry) Lookup(intent IntentType) (IntentHandler, error) {
	h, ok := r.handlers[intent]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, intent)
	}
	return h, nil
}

func slotSpec(h IntentHandler, name string) (SlotSpec, bool) {
	for _, spec := range h.Slots() {
		if spec.Name == name {
			return spec, true
		}
	}
	return SlotSpec{}, false
}

// requiredMissing is the MissingFields implementation shared by handlers.
func requiredMissing(specs []SlotSpec, state *State) []string {
	var missing []string
	for _, spec := range specs {
		if spec.Required && !state.Data.Has(spec.Name) {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

package conversation

import (
	"time"
)

// Phase is where a conversation sits in the collect/confirm cycle.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseCollectingData       Phase = "collecting_data"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
)

// Turn is one line of the bounded history handed to the classifier.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// State is the per-conversation record owned by the StateStore.
type State struct {
	ConversationID string     `json:"conversation_id"`
	Phase          Phase      `json:"phase"`
	PendingIntent  IntentType `json:"pending_intent,omitempty"`
	Data           Slots      `json:"data,omitempty"`
	History        []Turn     `json:"history,omitempty"`
	LastMessage    string     `json:"last_message,omitempty"`
	LastUpdated    time.Time  `json:"last_updated"`
}

// NewState returns an Idle state for id.
func NewState(id string) *State {
	return &State{ConversationID: id, Phase: PhaseIdle}
}

// Reset drops the pending intent and its slots. History is kept.
func (s *State) Reset() {
	s.Phase = PhaseIdle
	s.PendingIntent = ""
	s.Data = nil
}

// SetSlot stores a value for the pending intent.
func (s *State) SetSlot(name string, v SlotValue) {
	if s.Data == nil {
		s.Data = make(Slots)
	}
	s.Data[name] = v
}

// DeleteSlot removes a value so it is asked for again.
func (s *State) DeleteSlot(name string) {
	delete(s.Data, name)
}

// AppendTurn records a turn, keeping at most max entries (max <= 0 keeps none).
func (s *State) AppendTurn(role, content string, at time.Time, max int) {
	if max <= 0 {
		s.History = nil
		return
	}
	s.History = append(s.History, Turn{Role: role, Content: content, At: at})
	if over := len(s.History) - max; over > 0 {
		s.History = append([]Turn(nil), s.History[over:]...)
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	if s.Data != nil {
		out.Data = make(Slots, len(s.Data))
		for k, v := range s.Data {
			out.Data[k] = v
		}
	}
	if s.History != nil {
		out.History = append([]Turn(nil), s.History...)
	}
	return &out
}

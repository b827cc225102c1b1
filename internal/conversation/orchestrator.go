package conversation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/finchat/pkg/logging"
)

const (
	genericFailureReply = "Desculpe, algo deu errado do meu lado. Vamos recomeçar: como posso ajudar?"
	clarificationReply  = "Não entendi bem. Você quer registrar uma despesa, uma compra no cartão ou tirar uma dúvida sobre suas finanças?"
	cancelledReply      = "Tudo bem, operação cancelada."
	emptyMessageReply   = "Pode me dizer o que você precisa?"

	defaultMinConfidence     = 0.6
	defaultHistorySize       = 10
	defaultClassifierTimeout = 20 * time.Second
	defaultWriteTimeout      = 10 * time.Second
)

// ErrInvalidMessage is returned for messages without a conversation id.
var ErrInvalidMessage = errors.New("conversation: message has no conversation id")

// InboundMessage is one user message from the chat channel.
type InboundMessage struct {
	ConversationID string
	SenderID       string
	Text           string
	ReceivedAt     time.Time
}

// Reply is the single outbound text produced for an InboundMessage.
type Reply struct {
	ConversationID string
	Text           string
	Phase          Phase
	Intent         IntentType
}

// Recorder receives orchestrator events for metrics. Outcomes are short
// snake_case labels.
type Recorder interface {
	ObserveInbound(phase string)
	ObserveClassification(intent, outcome string)
	ObserveCompletion(intent, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveInbound(string)                {}
func (noopRecorder) ObserveClassification(string, string) {}
func (noopRecorder) ObserveCompletion(string, string)     {}

type orchestratorConfig struct {
	minConfidence     float64
	historySize       int
	classifierTimeout time.Duration
	writeTimeout      time.Duration
	now               func() time.Time
	location          *time.Location
	recorder          Recorder
	tracer            trace.Tracer
}

// OrchestratorOption configures the Orchestrator.
type OrchestratorOption func(*orchestratorConfig)

// WithMinConfidence sets the classification confidence below which the user is asked to clarify.
func WithMinConfidence(v float64) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if v >= 0 && v <= 1 {
			cfg.minConfidence = v
		}
	}
}

// WithHistorySize bounds the turns kept for the classifier.
func WithHistorySize(n int) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if n >= 0 {
			cfg.historySize = n
		}
	}
}

func WithClassifierTimeout(d time.Duration) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if d > 0 {
			cfg.classifierTimeout = d
		}
	}
}

func WithWriteTimeout(d time.Duration) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if d > 0 {
			cfg.writeTimeout = d
		}
	}
}

// WithOrchestratorClock overrides time.Now for relative date answers.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithLocation sets the zone relative dates are read in.
func WithLocation(loc *time.Location) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if loc != nil {
			cfg.location = loc
		}
	}
}

func WithRecorder(r Recorder) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if r != nil {
			cfg.recorder = r
		}
	}
}

func WithOrchestratorTracer(t trace.Tracer) OrchestratorOption {
	return func(cfg *orchestratorConfig) {
		if t != nil {
			cfg.tracer = t
		}
	}
}

// Orchestrator runs the Idle -> CollectingData -> AwaitingConfirmation cycle
// for every conversation. It is the only place that resets state to Idle.
type Orchestrator struct {
	store      StateStore
	classifier Classifier
	registry   *Registry
	logger     *logging.Logger
	cfg        orchestratorConfig
}

func NewOrchestrator(store StateStore, classifier Classifier, registry *Registry, logger *logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	if store == nil {
		panic("conversation: state store cannot be nil")
	}
	if classifier == nil {
		panic("conversation: classifier cannot be nil")
	}
	if registry == nil {
		panic("conversation: intent registry cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := orchestratorConfig{
		minConfidence:     defaultMinConfidence,
		historySize:       defaultHistorySize,
		classifierTimeout: defaultClassifierTimeout,
		writeTimeout:      defaultWriteTimeout,
		now:               time.Now,
		location:          time.UTC,
		recorder:          noopRecorder{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer("finchat.internal.conversation.orchestrator")
	}
	return &Orchestrator{
		store:      store,
		classifier: classifier,
		registry:   registry,
		logger:     logger,
		cfg:        cfg,
	}
}

// HandleMessage processes one message under the conversation lock and
// returns the reply. Failures after the lock is taken become an apology with
// the state back in Idle; the returned error is only for unusable input or a
// lock that could not be acquired.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg InboundMessage) (reply Reply, err error) {
	id := strings.TrimSpace(msg.ConversationID)
	if id == "" {
		return Reply{}, ErrInvalidMessage
	}
	ctx, span := o.cfg.tracer.Start(ctx, "conversation.handle_message",
		trace.WithAttributes(attribute.String("conversation.id", id)))
	defer span.End()

	unlock, err := o.store.Lock(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock")
		return Reply{}, fmt.Errorf("conversation: lock %s: %w", id, err)
	}
	defer unlock()

	logger := o.logger.With("conversation_id", id)
	text := strings.TrimSpace(msg.Text)

	state, err := o.store.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		logger.Error("failed to load conversation state", "error", err)
		return Reply{ConversationID: id, Text: genericFailureReply, Phase: PhaseIdle}, nil
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling message", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			span.SetStatus(codes.Error, "panic")
			intent := state.PendingIntent
			o.resetToIdle(state)
			o.cfg.recorder.ObserveCompletion(intentLabel(intent), "panic")
			o.finish(ctx, logger, state, text, genericFailureReply)
			reply = Reply{ConversationID: id, Text: genericFailureReply, Phase: PhaseIdle}
			err = nil
		}
	}()

	o.cfg.recorder.ObserveInbound(string(state.Phase))
	span.SetAttributes(attribute.String("conversation.phase", string(state.Phase)))

	var replyText string
	var handleErr error
	if text == "" {
		replyText = emptyMessageReply
	} else {
		state.LastMessage = text
		switch state.Phase {
		case PhaseCollectingData:
			replyText, handleErr = o.collect(ctx, state, text)
		case PhaseAwaitingConfirmation:
			replyText, handleErr = o.confirm(ctx, state, text)
		default:
			replyText, handleErr = o.idle(ctx, state, text)
		}
	}

	if handleErr != nil {
		span.RecordError(handleErr)
		logger.Error("failed to handle message",
			"phase", string(state.Phase),
			"intent", string(state.PendingIntent),
			"error", handleErr,
		)
		o.cfg.recorder.ObserveCompletion(intentLabel(state.PendingIntent), "error")
		o.resetToIdle(state)
		replyText = genericFailureReply
	}

	o.finish(ctx, logger, state, text, replyText)
	return Reply{
		ConversationID: id,
		Text:           replyText,
		Phase:          state.Phase,
		Intent:         state.PendingIntent,
	}, nil
}

// finish records the exchange in history and persists the state.
func (o *Orchestrator) finish(ctx context.Context, logger *logging.Logger, state *State, text, replyText string) {
	now := o.cfg.now().UTC()
	if text != "" {
		state.AppendTurn(ChatRoleUser, text, now, o.cfg.historySize)
	}
	state.AppendTurn(ChatRoleAssistant, replyText, now, o.cfg.historySize)
	if err := o.store.Save(ctx, state); err != nil {
		logger.Error("failed to save conversation state", "phase", string(state.Phase), "error", err)
	}
}

// resetToIdle is the single place pending work is discarded.
func (o *Orchestrator) resetToIdle(state *State) {
	state.Reset()
}

func (o *Orchestrator) idle(ctx context.Context, state *State, text string) (string, error) {
	classifyCtx, cancel := context.WithTimeout(ctx, o.cfg.classifierTimeout)
	defer cancel()

	result, err := o.classifier.Classify(classifyCtx, ClassificationRequest{History: state.History, Text: text})
	if err != nil {
		o.cfg.recorder.ObserveClassification(string(IntentUnknown), "error")
		return "", err
	}

	handler, lookupErr := o.registry.Lookup(result.Intent)
	if result.Intent == IntentUnknown || lookupErr != nil || result.Confidence < o.cfg.minConfidence {
		o.cfg.recorder.ObserveClassification(string(result.Intent), "clarify")
		if result.Clarification != "" {
			return result.Clarification, nil
		}
		return clarificationReply, nil
	}
	o.cfg.recorder.ObserveClassification(string(result.Intent), "accepted")

	state.PendingIntent = result.Intent
	state.Data = make(Slots)
	o.mergeClassified(handler, state, result.Slots)
	return o.advance(ctx, handler, state)
}

// mergeClassified keeps only declared slots whose values coerce to the declared kind.
func (o *Orchestrator) mergeClassified(handler IntentHandler, state *State, raw map[string]any) {
	for _, spec := range handler.Slots() {
		value, ok := raw[spec.Name]
		if !ok {
			continue
		}
		coerced, err := coerceRaw(spec.Kind, value, o.cfg.now(), o.cfg.location)
		if err != nil {
			continue
		}
		if spec.Check != nil && spec.Check(coerced) != nil {
			continue
		}
		state.SetSlot(spec.Name, coerced)
	}
}

func (o *Orchestrator) advance(ctx context.Context, handler IntentHandler, state *State) (string, error) {
	replyText, err := handler.Handle(ctx, state)
	if err != nil {
		return "", err
	}
	if state.Phase == PhaseIdle {
		o.cfg.recorder.ObserveCompletion(string(handler.Intent()), "completed")
		o.resetToIdle(state)
	}
	return replyText, nil
}

func (o *Orchestrator) collect(ctx context.Context, state *State, text string) (string, error) {
	handler, err := o.registry.Lookup(state.PendingIntent)
	if err != nil {
		return "", err
	}
	if isCancel(text) {
		o.cfg.recorder.ObserveCompletion(string(handler.Intent()), "cancelled")
		o.resetToIdle(state)
		return cancelledReply, nil
	}

	missing := handler.MissingFields(state)
	if len(missing) == 0 {
		return o.advance(ctx, handler, state)
	}
	spec, ok := slotSpec(handler, missing[0])
	if !ok {
		return "", fmt.Errorf("conversation: handler %s reported undeclared slot %q", handler.Intent(), missing[0])
	}

	value, err := coerceText(spec.Kind, text, o.cfg.now(), o.cfg.location)
	if err == nil && spec.Check != nil {
		if checkErr := spec.Check(value); checkErr != nil {
			return repeatQuestion(spec, checkErr.Error()), nil
		}
	}
	if err != nil {
		return repeatQuestion(spec, ""), nil
	}
	state.SetSlot(spec.Name, value)
	return o.advance(ctx, handler, state)
}

func repeatQuestion(spec SlotSpec, problem string) string {
	var b strings.Builder
	b.WriteString("Não entendi")
	if problem != "" {
		b.WriteString(": o valor ")
		b.WriteString(problem)
	}
	b.WriteString(". ")
	b.WriteString(spec.Question)
	if spec.Hint != "" {
		b.WriteString(" (")
		b.WriteString(spec.Hint)
		b.WriteString(")")
	}
	return b.String()
}

func (o *Orchestrator) confirm(ctx context.Context, state *State, text string) (string, error) {
	handler, err := o.registry.Lookup(state.PendingIntent)
	if err != nil {
		return "", err
	}

	answer := parseConfirmation(text)
	if isCancel(text) {
		answer = confirmNo
	}
	if answer == confirmUnknown {
		return "Não entendi. " + handler.BuildConfirmationMessage(state), nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, o.cfg.writeTimeout)
	defer cancel()

	confirmed := answer == confirmYes
	replyText, err := handler.HandleConfirmation(writeCtx, state, confirmed)
	intent := state.PendingIntent
	o.resetToIdle(state)
	if err != nil {
		return "", err
	}
	outcome := "declined"
	if confirmed {
		outcome = "confirmed"
	}
	o.cfg.recorder.ObserveCompletion(string(intent), outcome)
	return replyText, nil
}

func intentLabel(intent IntentType) string {
	if intent == "" {
		return "none"
	}
	return string(intent)
}

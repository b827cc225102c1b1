package bootstrap

import (
	"fmt"

	appconfig "github.com/wolfman30/finchat/internal/config"
	"github.com/wolfman30/finchat/internal/conversation"
	"github.com/wolfman30/finchat/internal/finance"
	"github.com/wolfman30/finchat/pkg/logging"
)

// ConversationDeps are the collaborators the orchestrator is assembled from.
type ConversationDeps struct {
	States   conversation.StateStore
	Finance  finance.Store
	LLM      conversation.LLMClient
	Model    string
	Recorder conversation.Recorder
}

// BuildOrchestrator registers every intent handler and wires the classifier
// and state store into a ready orchestrator.
func BuildOrchestrator(cfg *appconfig.Config, deps ConversationDeps, logger *logging.Logger) (*conversation.Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.States == nil || deps.Finance == nil || deps.LLM == nil {
		return nil, fmt.Errorf("bootstrap: state store, finance store and llm client are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc := cfg.Location()

	handlerOpts := []conversation.HandlerOption{
		conversation.WithHandlerLocation(loc),
		conversation.WithHandlerLogger(logger),
		conversation.WithCategoryColor(cfg.DefaultCategoryColor),
	}
	registry, err := conversation.NewRegistry(
		conversation.NewExpenseHandler(deps.Finance, handlerOpts...),
		conversation.NewCardPurchaseHandler(deps.Finance, handlerOpts...),
		conversation.NewConsultingHandler(deps.Finance, conversation.NewLLMAdvisor(deps.LLM, deps.Model), handlerOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build intent registry: %w", err)
	}

	classifier := conversation.NewLLMClassifier(deps.LLM, deps.Model, registry)
	opts := []conversation.OrchestratorOption{
		conversation.WithMinConfidence(cfg.ClassifierMinConfidence),
		conversation.WithHistorySize(cfg.ConversationHistorySize),
		conversation.WithClassifierTimeout(cfg.ClassifierTimeout),
		conversation.WithWriteTimeout(cfg.WriteTimeout),
		conversation.WithLocation(loc),
	}
	if deps.Recorder != nil {
		opts = append(opts, conversation.WithRecorder(deps.Recorder))
	}
	return conversation.NewOrchestrator(deps.States, classifier, registry, logger, opts...), nil
}

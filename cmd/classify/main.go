package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/finchat/internal/app/bootstrap"
	appconfig "github.com/wolfman30/finchat/internal/config"
	"github.com/wolfman30/finchat/internal/conversation"
	"github.com/wolfman30/finchat/internal/finance"
	"github.com/wolfman30/finchat/pkg/logging"
)

var samplePhrases = []string{
	"gastei 50 reais no mercado hoje",
	"comprei um celular de 2400 em 10x no nubank",
	"como estão minhas finanças esse mês?",
	"bom dia",
}

// classify runs the configured classifier over the phrases given as
// arguments (or a built-in sample) and prints the raw results.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel, "text")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	llm, model, err := bootstrap.BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("build llm client: %v", err)
	}

	store := finance.NewMemoryStore()
	registry, err := conversation.NewRegistry(
		conversation.NewExpenseHandler(store),
		conversation.NewCardPurchaseHandler(store),
		conversation.NewConsultingHandler(store, conversation.NewLLMAdvisor(llm, model)),
	)
	if err != nil {
		log.Fatalf("build registry: %v", err)
	}
	classifier := conversation.NewLLMClassifier(llm, model, registry)

	phrases := os.Args[1:]
	if len(phrases) == 0 {
		phrases = samplePhrases
	}
	for _, phrase := range phrases {
		start := time.Now()
		result, err := classifier.Classify(ctx, conversation.ClassificationRequest{Text: phrase})
		elapsed := time.Since(start).Round(time.Millisecond)
		fmt.Println(strings.Repeat("=", 60))
		fmt.Printf("%s (%s)\n", phrase, elapsed)
		if err != nil {
			fmt.Printf("  error: %v\n", err)
			continue
		}
		out, _ := json.MarshalIndent(result, "  ", "  ")
		fmt.Printf("  %s\n", out)
	}
}

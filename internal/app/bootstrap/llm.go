package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/finchat/internal/config"
	"github.com/wolfman30/finchat/internal/conversation"
	"github.com/wolfman30/finchat/pkg/logging"
)

const (
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
)

// ErrNoLLMProvider is returned when neither Bedrock nor Gemini is configured.
var ErrNoLLMProvider = errors.New("bootstrap: no LLM provider configured")

// LoadAWSConfig centralizes AWS SDK initialization. Static keys win over the
// default credential chain when both are set.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, loaders...)
}

// BuildLLMClient wires the configured provider as primary and the other one,
// when configured, as fallback. The returned model id is the one passed on
// each request; Gemini ignores it in favour of its own.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.LLMClient, string, error) {
	if cfg == nil {
		return nil, "", fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	hasBedrock := strings.TrimSpace(cfg.BedrockModelID) != ""
	hasGemini := strings.TrimSpace(cfg.GeminiAPIKey) != ""

	buildBedrock := func() (conversation.LLMClient, error) {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg)), nil
	}
	buildGemini := func() (conversation.LLMClient, error) {
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	primaryName := cfg.LLMProvider
	if primaryName == "" {
		primaryName = ProviderBedrock
	}
	switch {
	case primaryName == ProviderBedrock && !hasBedrock && hasGemini:
		logger.Warn("bedrock model not configured; using gemini as primary")
		primaryName = ProviderGemini
	case primaryName == ProviderGemini && !hasGemini && hasBedrock:
		logger.Warn("gemini api key not configured; using bedrock as primary")
		primaryName = ProviderBedrock
	}

	var primary, fallback conversation.LLMClient
	var err error
	switch primaryName {
	case ProviderBedrock:
		if !hasBedrock {
			return nil, "", ErrNoLLMProvider
		}
		if primary, err = buildBedrock(); err != nil {
			return nil, "", err
		}
		if hasGemini {
			if fallback, err = buildGemini(); err != nil {
				logger.Warn("gemini fallback unavailable", "error", err)
				fallback = nil
			}
		}
	case ProviderGemini:
		if !hasGemini {
			return nil, "", ErrNoLLMProvider
		}
		if primary, err = buildGemini(); err != nil {
			return nil, "", err
		}
		if hasBedrock {
			if fallback, err = buildBedrock(); err != nil {
				logger.Warn("bedrock fallback unavailable", "error", err)
				fallback = nil
			}
		}
	default:
		return nil, "", fmt.Errorf("bootstrap: unknown LLM provider %q", cfg.LLMProvider)
	}

	logger.Info("llm client configured",
		"primary", primaryName,
		"fallback", fallback != nil,
		"bedrock_model", cfg.BedrockModelID,
		"gemini_model", cfg.GeminiModelID,
	)
	return conversation.NewFallbackLLMClient(primary, fallback, logger), cfg.BedrockModelID, nil
}

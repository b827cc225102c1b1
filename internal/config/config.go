package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
	Timezone  string

	DatabaseURL    string
	UseMemoryStore bool

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Conversation engine
	StateBackend             string
	ConversationIdleTimeout  time.Duration
	ConversationJanitorEvery time.Duration
	ConversationLockTimeout  time.Duration
	ConversationHistorySize  int
	ClassifierMinConfidence  float64
	ClassifierTimeout        time.Duration
	WriteTimeout             time.Duration
	DefaultCategoryColor     string

	// NLP providers
	LLMProvider        string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	BedrockModelID     string
	GeminiAPIKey       string
	GeminiModelID      string

	// Telegram transport
	TelegramBotToken      string
	TelegramWebhookSecret string
	TelegramBaseURL       string
	TelegramMaxRetries    int
	TelegramRetryBackoff  time.Duration

	// Throttling
	ChatRatePerMinute    int
	ChatRateBurst        int
	WebhookRatePerSecond float64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		Timezone:  getEnv("TIMEZONE", "America/Sao_Paulo"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		StateBackend:             strings.ToLower(strings.TrimSpace(getEnv("STATE_BACKEND", "memory"))),
		ConversationIdleTimeout:  getEnvAsDuration("CONVERSATION_IDLE_TIMEOUT", 30*time.Minute),
		ConversationJanitorEvery: getEnvAsDuration("CONVERSATION_JANITOR_INTERVAL", 5*time.Minute),
		ConversationLockTimeout:  getEnvAsDuration("CONVERSATION_LOCK_TIMEOUT", 30*time.Second),
		ConversationHistorySize:  getEnvAsInt("CONVERSATION_HISTORY_SIZE", 10),
		ClassifierMinConfidence:  getEnvAsFloat("CLASSIFIER_MIN_CONFIDENCE", 0.6),
		ClassifierTimeout:        getEnvAsDuration("CLASSIFIER_TIMEOUT", 20*time.Second),
		WriteTimeout:             getEnvAsDuration("WRITE_TIMEOUT", 10*time.Second),
		DefaultCategoryColor:     getEnv("DEFAULT_CATEGORY_COLOR", "#9E9E9E"),

		LLMProvider:        strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "bedrock"))),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:      getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		TelegramBaseURL:       getEnv("TELEGRAM_BASE_URL", ""),
		TelegramMaxRetries:    getEnvAsInt("TELEGRAM_MAX_RETRIES", 2),
		TelegramRetryBackoff:  getEnvAsDuration("TELEGRAM_RETRY_BACKOFF", 500*time.Millisecond),

		ChatRatePerMinute:    getEnvAsInt("CHAT_RATE_PER_MINUTE", 20),
		ChatRateBurst:        getEnvAsInt("CHAT_RATE_BURST", 5),
		WebhookRatePerSecond: getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 50),
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	OpenAIAPIKey       string
	AnthropicAPIKey    string
	OracleProvider     string
	OracleModel        string
	OracleTimeout      time.Duration
	DatabaseURL        string
	RedisURL           string
	PostQueueKey       string
	DeadLetterKey      string
	QueuePopTimeout    time.Duration
	TelegramToken      string
	TelegramWebhookURL string
	TelegramChannelID  int64
	ServerPort         string
	LogLevel           string
	LogDevelopment     bool
	LedgerRetention    time.Duration
	ProjectCacheSize   int
	DedupWindow        time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		OracleProvider:     strings.ToLower(getEnv("ORACLE_PROVIDER", ProviderOpenAI)),
		OracleModel:        getEnv("ORACLE_MODEL", ""),
		OracleTimeout:      getEnvAsDuration("ORACLE_TIMEOUT", 30*time.Second),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		PostQueueKey:       getEnv("POST_QUEUE_KEY", "hfentity:posts"),
		DeadLetterKey:      getEnv("DEAD_LETTER_KEY", "hfentity:posts:dead"),
		QueuePopTimeout:    getEnvAsDuration("QUEUE_POP_TIMEOUT", 5*time.Second),
		TelegramToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookURL: getEnv("TELEGRAM_WEBHOOK_URL", ""),
		TelegramChannelID:  getEnvAsInt64("TELEGRAM_CHANNEL_ID", 0),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogDevelopment:     getEnvAsBool("LOG_DEVELOPMENT", false),
		LedgerRetention:    getEnvAsDuration("LEDGER_RETENTION", 24*time.Hour),
		ProjectCacheSize:   getEnvAsInt("PROJECT_CACHE_SIZE", 1024),
		DedupWindow:        getEnvAsDuration("DEDUP_WINDOW", 48*time.Hour),
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.OracleProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ORACLE_PROVIDER %q", c.OracleProvider))
	}

	if c.DedupWindow <= 0 {
		errs = append(errs, fmt.Errorf("DEDUP_WINDOW must be positive, got %s", c.DedupWindow))
	}
	if c.ProjectCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("PROJECT_CACHE_SIZE must be positive, got %d", c.ProjectCacheSize))
	}
	if c.LedgerRetention <= 0 {
		errs = append(errs, fmt.Errorf("LEDGER_RETENTION must be positive, got %s", c.LedgerRetention))
	}
	if c.TelegramWebhookURL != "" && c.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_WEBHOOK_URL set without TELEGRAM_BOT_TOKEN"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

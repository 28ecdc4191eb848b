package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Storage backends selectable with STORAGE_BACKEND
const (
	BackendClickHouse = "clickhouse"
	BackendPostgres   = "postgres"
	BackendRedis      = "redis"
	BackendMock       = "mock"
)

// Config holds the application configuration
type Config struct {
	TelegramToken  string
	AllowedUserIDs []int64

	// Bot mode configuration
	WebhookMode bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL  string // URL for webhook (required if WebhookMode is true)
	Port        string

	Backend string

	// ClickHouse configuration
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// AI assistant; a key saved through the bot takes precedence
	GeminiAPIKey string

	LibrarianUsername string
	LibrarianPassword string

	SeedDemoData bool
	LogLevel     string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	// Telegram Bot Token (required)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	ids, err := parseUserIDs(os.Getenv("ALLOWED_USER_IDS"))
	if err != nil {
		return nil, err
	}
	config.AllowedUserIDs = ids

	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = os.Getenv("WEBHOOK_URL")
		if config.WebhookURL == "" {
			return nil, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}

	config.Port = envOr("PORT", "8080")

	config.Backend = strings.ToLower(envOr("STORAGE_BACKEND", BackendClickHouse))
	// USE_MOCK_DB predates STORAGE_BACKEND and still wins
	if os.Getenv("USE_MOCK_DB") == "true" {
		config.Backend = BackendMock
	}

	switch config.Backend {
	case BackendClickHouse:
		if err := loadClickHouse(config); err != nil {
			return nil, err
		}
	case BackendPostgres:
		config.PostgresDSN = os.Getenv("POSTGRES_DSN")
		if config.PostgresDSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is required when STORAGE_BACKEND is postgres")
		}
	case BackendRedis:
		if err := loadRedis(config); err != nil {
			return nil, err
		}
	case BackendMock:
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q (want clickhouse, postgres, redis or mock)", config.Backend)
	}

	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	config.LibrarianUsername = os.Getenv("LIBRARIAN_USERNAME")
	config.LibrarianPassword = os.Getenv("LIBRARIAN_PASSWORD")

	// Demo data is on unless explicitly disabled
	config.SeedDemoData = os.Getenv("SEED_DEMO_DATA") != "false"
	config.LogLevel = strings.ToLower(envOr("LOG_LEVEL", "info"))

	return config, nil
}

// UseMockDB reports whether the in-memory store is selected
func (c *Config) UseMockDB() bool {
	return c.Backend == BackendMock
}

func parseUserIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, fmt.Errorf("ALLOWED_USER_IDS is required (comma-separated list of Telegram user IDs)")
	}

	var ids []int64
	for _, idStr := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID in ALLOWED_USER_IDS: %s", idStr)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func loadClickHouse(config *Config) error {
	config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
	if config.ClickHouseHost == "" {
		return fmt.Errorf("CLICKHOUSE_HOST is required when STORAGE_BACKEND is clickhouse")
	}

	config.ClickHousePort = 9000 // Default ClickHouse native port
	if portStr := os.Getenv("CLICKHOUSE_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid CLICKHOUSE_PORT: %w", err)
		}
		config.ClickHousePort = port
	}

	config.ClickHouseDatabase = envOr("CLICKHOUSE_DATABASE", "default")
	config.ClickHouseUser = envOr("CLICKHOUSE_USER", "default")
	config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
	config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	return nil
}

func loadRedis(config *Config) error {
	config.RedisAddr = envOr("REDIS_ADDR", "localhost:6379")
	config.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		config.RedisDB = db
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

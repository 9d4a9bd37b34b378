package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendMongo    = "mongo"
)

// Config holds all configuration values.
type Config struct {
	// Telegram
	TelegramToken      string
	TelegramTokenParam string
	BotUsername        string
	WebhookSecret      string

	// Storage
	StorageBackend string
	StateTable     string
	MongoURI       string
	MongoDatabase  string

	// Bot behaviour
	MessagesLimit int
	RatingsLimit  int
	StateTTL      time.Duration
	SweepInterval time.Duration

	// Polling
	PollTimeout int
	Workers     int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from the environment. Files are loaded into the
// environment first when present; variables already set win.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := Config{
		TelegramToken:      getEnv("TELEGRAM_TOKEN", ""),
		TelegramTokenParam: getEnv("TELEGRAM_TOKEN_PARAM", ""),
		BotUsername:        strings.TrimPrefix(getEnv("BOT_USERNAME", ""), "@"),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendMemory)),
		StateTable:     getEnv("STATE_TABLE", ""),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:  getEnv("MONGO_DATABASE", "ratebot"),

		MessagesLimit: envInt("HISTORY_MESSAGES_LIMIT", 10),
		RatingsLimit:  envInt("HISTORY_RATINGS_LIMIT", 5),
		StateTTL:      envDuration("STATE_TTL", 30*time.Minute),
		SweepInterval: envDuration("STATE_SWEEP_INTERVAL", time.Minute),

		PollTimeout: envInt("POLL_TIMEOUT", 30),
		Workers:     envInt("WORKERS", 8),

		LogFile:  getEnv("LOG_FILE", "/tmp/ratebot.log"),
		LogLevel: parseLogLevel(getEnv("LOG_LEVEL", "INFO")),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TelegramToken == "" && c.TelegramTokenParam == "" {
		return errors.New("config: TELEGRAM_TOKEN or TELEGRAM_TOKEN_PARAM is required")
	}
	switch c.StorageBackend {
	case BackendMemory, BackendMongo:
	case BackendDynamoDB:
		if c.StateTable == "" {
			return errors.New("config: STATE_TABLE is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

// NeedsAWS reports whether an AWS SDK config has to be loaded.
func (c Config) NeedsAWS() bool {
	return c.StorageBackend == BackendDynamoDB || c.TelegramToken == ""
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

type Config struct {
	StoreBackend        string `validate:"oneof=firestore postgres memory"`
	ProjectID           string `validate:"required_if=StoreBackend firestore"`
	FirestoreCollection string `validate:"required_if=StoreBackend firestore"`
	CredentialsFile     string
	DatabaseURL         string `validate:"required_if=StoreBackend postgres"`

	Port              string `validate:"required,numeric"`
	DiscordWebhookURL string `validate:"omitempty,url"`
	TopicsConfigPath  string

	EvidenceURLsMax           int           `validate:"gte=1"`
	ReactivationWindow        time.Duration `validate:"gte=0"`
	ReactivateLegacyDismissed bool
	AtomicUpsert              bool
	SweepDismissed            bool
	StoreTimeout              time.Duration `validate:"gt=0"`
	FetchTimeout              time.Duration `validate:"gt=0"`

	RedisURL   string        `validate:"omitempty,url"`
	RunLockTTL time.Duration `validate:"gt=0"`

	AllowedDomains []string
	LogLevel       string `validate:"oneof=debug info warn error"`
	LogFormat      string `validate:"oneof=text json"`
}

// Load reads the configuration from the environment. A .env file in the working directory,
// when present, seeds variables that are not already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to read .env file", "error", err)
	}

	cfg := &Config{
		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", BackendFirestore)),
		ProjectID:           os.Getenv("GOOGLE_CLOUD_PROJECT"),
		FirestoreCollection: getEnv("FIRESTORE_COLLECTION", "deals"),
		CredentialsFile:     os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_FILE"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		Port:                getEnv("PORT", "8080"),
		DiscordWebhookURL:   os.Getenv("DISCORD_WEBHOOK_URL"),
		TopicsConfigPath:    getEnv("TOPICS_CONFIG_PATH", "config/topics.yaml"),
		RedisURL:            os.Getenv("REDIS_URL"),
		AllowedDomains:      splitList(os.Getenv("ALLOWED_DOMAINS")),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	var err error
	if cfg.EvidenceURLsMax, err = getInt("EVIDENCE_URLS_MAX", 20); err != nil {
		return nil, err
	}
	if cfg.ReactivationWindow, err = getDuration("REACTIVATION_WINDOW", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = getDuration("STORE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getDuration("FETCH_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RunLockTTL, err = getDuration("RUN_LOCK_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReactivateLegacyDismissed, err = getBool("REACTIVATE_LEGACY_DISMISSED", true); err != nil {
		return nil, err
	}
	if cfg.AtomicUpsert, err = getBool("ATOMIC_UPSERT", true); err != nil {
		return nil, err
	}
	if cfg.SweepDismissed, err = getBool("SWEEP_DISMISSED", false); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.DiscordWebhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, Discord notifications will be skipped")
	}
	if !cfg.AtomicUpsert {
		slog.Warn("ATOMIC_UPSERT disabled, concurrent upserts of one deal may lose updates")
	}
	return cfg, nil
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

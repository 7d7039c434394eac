// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-retry"
)

// MaxPageSize bounds PAGE_SIZE.
const MaxPageSize = 100

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string

	PageSize            int
	Debounce            time.Duration
	Lookahead           int
	VisibilityThreshold float64
	ScrollToTop         bool
	RetryMax            int
	RetryBase           time.Duration

	ListenAddr     string
	RemoteURL      string
	FeedURLs       []string
	ImportInterval time.Duration

	TelegramBotToken string
	AllowedUsers     []int64
}

// LoadDotenv reads KEY=value pairs from the given files (".env" when none
// are given) into the environment. Variables already set win and missing
// files are skipped.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:     envString("DATABASE_PATH", "./data/feed.db"),
		LogLevel:         envString("LOG_LEVEL", "info"),
		ListenAddr:       envString("LISTEN_ADDR", ":8080"),
		RemoteURL:        os.Getenv("REMOTE_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	var err error
	if cfg.PageSize, err = envInt("PAGE_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.PageSize < 1 || cfg.PageSize > MaxPageSize {
		return nil, fmt.Errorf("PAGE_SIZE must be between 1 and %d, got %d", MaxPageSize, cfg.PageSize)
	}
	if cfg.Debounce, err = envDuration("DEBOUNCE", 300*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Lookahead, err = envInt("LOOKAHEAD", 3); err != nil {
		return nil, err
	}
	if cfg.Lookahead < 0 {
		return nil, fmt.Errorf("LOOKAHEAD must not be negative, got %d", cfg.Lookahead)
	}
	if cfg.VisibilityThreshold, err = envFloat("VISIBILITY_THRESHOLD", 0.1); err != nil {
		return nil, err
	}
	if cfg.VisibilityThreshold <= 0 || cfg.VisibilityThreshold > 1 {
		return nil, fmt.Errorf("VISIBILITY_THRESHOLD must be in (0, 1], got %v", cfg.VisibilityThreshold)
	}
	if cfg.ScrollToTop, err = envBool("SCROLL_TO_TOP", true); err != nil {
		return nil, err
	}
	if cfg.RetryMax, err = envInt("RETRY_MAX", 0); err != nil {
		return nil, err
	}
	if cfg.RetryMax < 0 {
		return nil, fmt.Errorf("RETRY_MAX must not be negative, got %d", cfg.RetryMax)
	}
	if cfg.RetryBase, err = envDuration("RETRY_BASE", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.ImportInterval, err = envDuration("IMPORT_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}

	cfg.FeedURLs = splitList(os.Getenv("FEED_URLS"))

	for _, s := range splitList(os.Getenv("ALLOWED_USERS")) {
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
	}

	return cfg, nil
}

// RequireTelegram reports an error when the bot token is missing.
func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.AllowedUsers, userID)
}

// Backoff returns the automatic retry policy for page fetches, or nil when
// RETRY_MAX is zero and failed pages wait for a manual retry.
func (c *Config) Backoff() func() retry.Backoff {
	if c.RetryMax <= 0 {
		return nil
	}
	maxRetries, base := uint64(c.RetryMax), c.RetryBase
	return func() retry.Backoff {
		return retry.WithMaxRetries(maxRetries, retry.NewExponential(base))
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, v)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

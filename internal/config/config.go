// Package config loads process configuration from prefixed environment
// variables. Each component gets its own prefix and its own small Config
// struct; nothing reaches for a generic reflection-based loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envTelegramToken   = "TG_BOT_TOKEN"
	envTelegramCacheID = "TG_CACHE_CHAT_ID"

	envDatabaseDSN = "DATABASE_URL"

	envTwitterBearerToken = "TWITTER_BEARER_TOKEN"

	envHTTPMinRetryWaitMs = "HTTP_MIN_RETRY_WAIT_MS"
	envHTTPMaxRetryWaitMs = "HTTP_MAX_RETRY_WAIT_MS"
	envHTTPTotalBudgetMs  = "HTTP_TOTAL_BUDGET_MS"

	envFfmpegPath = "TRANSCODE_FFMPEG_PATH"
)

// Telegram holds the messaging-platform credentials and cache channel id.
type Telegram struct {
	BotToken    string
	CacheChatID int64
}

// Database holds the Blob Cache Store connection string.
type Database struct {
	DSN string
}

// Twitter holds the Twitter/X adapter's credentials. It is optional: when
// empty the adapter still parses queries, and GetPost surfaces the API's
// own authentication error on first use.
type Twitter struct {
	BearerToken string
}

// HTTPRetry holds the outbound-HTTP retry-policy knobs.
type HTTPRetry struct {
	MinRetryWait time.Duration
	MaxRetryWait time.Duration
	TotalBudget  time.Duration
}

// Transcode holds the external ffmpeg binary location.
type Transcode struct {
	FfmpegPath string
}

// Config is the fully-loaded process configuration.
type Config struct {
	Telegram  Telegram
	Database  Database
	Twitter   Twitter
	HTTPRetry HTTPRetry
	Transcode Transcode
}

// MissingEnvError is returned when a required variable is absent, naming
// every missing variable for the component at once instead of failing on
// the first.
type MissingEnvError struct {
	Component string
	Variables []string
}

func (e MissingEnvError) Error() string {
	return fmt.Sprintf("%s configuration incomplete (missing %s)", e.Component, strings.Join(e.Variables, ", "))
}

// Load reads configuration from the environment, first loading a local
// .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Telegram: Telegram{
			BotToken: strings.TrimSpace(os.Getenv(envTelegramToken)),
		},
		Database: Database{
			DSN: strings.TrimSpace(os.Getenv(envDatabaseDSN)),
		},
		Twitter: Twitter{
			BearerToken: strings.TrimSpace(os.Getenv(envTwitterBearerToken)),
		},
		HTTPRetry: HTTPRetry{
			MinRetryWait: durationMsOrDefault(envHTTPMinRetryWaitMs, 100*time.Millisecond),
			MaxRetryWait: durationMsOrDefault(envHTTPMaxRetryWaitMs, 2*time.Second),
			TotalBudget:  durationMsOrDefault(envHTTPTotalBudgetMs, 10*time.Second),
		},
		Transcode: Transcode{
			FfmpegPath: stringOrDefault(envFfmpegPath, "ffmpeg"),
		},
	}

	var missing []string
	if cfg.Telegram.BotToken == "" {
		missing = append(missing, envTelegramToken)
	}
	if cfg.Database.DSN == "" {
		missing = append(missing, envDatabaseDSN)
	}
	if len(missing) > 0 {
		return nil, MissingEnvError{Component: "core", Variables: missing}
	}

	chatIDRaw := strings.TrimSpace(os.Getenv(envTelegramCacheID))
	if chatIDRaw == "" {
		return nil, MissingEnvError{Component: "telegram", Variables: []string{envTelegramCacheID}}
	}
	chatID, err := strconv.ParseInt(chatIDRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", envTelegramCacheID, err)
	}
	cfg.Telegram.CacheChatID = chatID

	return cfg, nil
}

func durationMsOrDefault(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func stringOrDefault(key, def string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	return raw
}

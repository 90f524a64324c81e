package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(envTelegramToken, "12345:token")
	t.Setenv(envTelegramCacheID, "-1001234567890")
	t.Setenv(envDatabaseDSN, "postgres://localhost/postingcache")
}

func TestLoadReadsRequiredAndDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "12345:token", cfg.Telegram.BotToken)
	assert.Equal(t, int64(-1001234567890), cfg.Telegram.CacheChatID)
	assert.Equal(t, 100*time.Millisecond, cfg.HTTPRetry.MinRetryWait)
	assert.Equal(t, 2*time.Second, cfg.HTTPRetry.MaxRetryWait)
	assert.Equal(t, 10*time.Second, cfg.HTTPRetry.TotalBudget)
	assert.Equal(t, "ffmpeg", cfg.Transcode.FfmpegPath)
}

func TestLoadReportsEveryMissingVariableAtOnce(t *testing.T) {
	t.Setenv(envTelegramToken, "")
	t.Setenv(envDatabaseDSN, "")
	t.Setenv(envTelegramCacheID, "")

	_, err := Load()

	var missing MissingEnvError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Variables, envTelegramToken)
	assert.Contains(t, missing.Variables, envDatabaseDSN)
}

func TestLoadRejectsNonNumericCacheChatID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(envTelegramCacheID, "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverridesRetryKnobs(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(envHTTPMinRetryWaitMs, "250")
	t.Setenv(envHTTPTotalBudgetMs, "30000")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.HTTPRetry.MinRetryWait)
	assert.Equal(t, 30*time.Second, cfg.HTTPRetry.TotalBudget)
}

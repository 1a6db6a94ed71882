package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("TELEGRAM_ALLOWED_CHAT_IDS", "42")
	t.Setenv("POLYGON_API_KEY", "key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, StorageRedis, cfg.StorageDriver)
	assert.Equal(t, "https://api.polygon.io", cfg.API.Polygon.Url)
	assert.Equal(t, "key", cfg.API.Polygon.ApiKey)
	assert.Equal(t, 12, cfg.Dividends.MonthsBack)
	assert.Equal(t, time.Hour, cfg.Jobs.RefreshQuotesInterval)
	assert.False(t, cfg.GoogleDrive.Enabled)
	assert.Equal(t, []int64{42}, cfg.Telegram.AllowedChatIDs)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("TELEGRAM_ALLOWED_CHAT_IDS", "42,-1001")
	t.Setenv("POLYGON_API_KEY", "key")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("PG_PORT", "6432")
	t.Setenv("API_TIMEOUT", "3s")
	t.Setenv("DIVIDENDS_MONTHS_BACK", "24")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, 6432, cfg.Postgres.Port)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, 24, cfg.Dividends.MonthsBack)
	assert.Equal(t, []int64{42, -1001}, cfg.Telegram.AllowedChatIDs)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "key")
	t.Setenv("TELEGRAM_ALLOWED_CHAT_IDS", "42")

	t.Run("unknown storage driver", func(t *testing.T) {
		t.Setenv("TELEGRAM_TOKEN", "token")
		t.Setenv("STORAGE_DRIVER", "sqlite")

		_, err := Load()
		assert.ErrorContains(t, err, "STORAGE_DRIVER")
	})

	t.Run("non-positive months back", func(t *testing.T) {
		t.Setenv("TELEGRAM_TOKEN", "token")
		t.Setenv("DIVIDENDS_MONTHS_BACK", "0")

		_, err := Load()
		assert.ErrorContains(t, err, "DIVIDENDS_MONTHS_BACK")
	})

	t.Run("no allowed chats", func(t *testing.T) {
		t.Setenv("TELEGRAM_TOKEN", "token")
		t.Setenv("TELEGRAM_ALLOWED_CHAT_IDS", "")

		_, err := Load()
		assert.ErrorContains(t, err, "TELEGRAM_ALLOWED_CHAT_IDS")
	})

	t.Run("zero job interval", func(t *testing.T) {
		t.Setenv("TELEGRAM_TOKEN", "token")
		t.Setenv("REFRESH_QUOTES_JOB_INTERVAL", "0s")

		_, err := Load()
		assert.ErrorContains(t, err, "REFRESH_QUOTES_JOB_INTERVAL")
	})

	t.Run("negative session expiration", func(t *testing.T) {
		t.Setenv("TELEGRAM_TOKEN", "token")
		t.Setenv("SESSION_EXPIRATION", "-1m")

		_, err := Load()
		assert.ErrorContains(t, err, "SESSION_EXPIRATION")
	})
}

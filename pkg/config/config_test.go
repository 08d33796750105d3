package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/otto")
		t.Setenv("JWT_SECRET", "0123456789abcdef0123")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "3000", cfg.Server.Port)
		assert.Equal(t, "smtp", cfg.Email.Provider)
		assert.Equal(t, 168*time.Hour, cfg.Auth.SessionTTL)
		assert.Equal(t, "America/Guayaquil", cfg.Cron.Timezone)
		assert.Equal(t, 20, cfg.AI.BatchSize)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/otto")
		t.Setenv("JWT_SECRET", "0123456789abcdef0123")
		t.Setenv("EMAIL_PROVIDER", "resend")
		t.Setenv("SCRAPER_RPS", "0.5")
		t.Setenv("VIDEO_TIMEOUT", "5m")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "resend", cfg.Email.Provider)
		assert.InDelta(t, 0.5, cfg.Scraper.RequestsPerSec, 0.0001)
		assert.Equal(t, 5*time.Minute, cfg.Video.Timeout)
	})

	t.Run("missing database", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("JWT_SECRET", "0123456789abcdef0123")

		_, err := Load()
		assert.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("short secret", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/otto")
		t.Setenv("JWT_SECRET", "short")

		_, err := Load()
		assert.ErrorContains(t, err, "JWT_SECRET")
	})

	t.Run("bad provider", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/otto")
		t.Setenv("JWT_SECRET", "0123456789abcdef0123")
		t.Setenv("EMAIL_PROVIDER", "pigeon")

		_, err := Load()
		assert.ErrorContains(t, err, "EMAIL_PROVIDER")
	})
}

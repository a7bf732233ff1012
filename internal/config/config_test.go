package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelink/backend/internal/config"
)

func TestLoad(t *testing.T) {
	t.Run("RequiresJWTSecret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := config.Load()
		assert.Error(t, err)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
		assert.Equal(t, "stagelink.db", cfg.SQLitePath)
		assert.Empty(t, cfg.DatabaseURL)
		assert.Equal(t, float64(10), cfg.SendRatePerSec)
		assert.Equal(t, 50, cfg.DefaultPageSize)
		assert.Contains(t, cfg.CORSOrigins, "http://localhost:3000")
	})

	t.Run("PostgresPartsComposeURL", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("POSTGRES_HOST", "db.internal")
		t.Setenv("POSTGRES_USER", "chat")
		t.Setenv("POSTGRES_PASSWORD", "pw")
		t.Setenv("POSTGRES_DB", "chatdb")

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, "postgres://chat:pw@db.internal:5432/chatdb?sslmode=disable", cfg.DatabaseURL)
	})

	t.Run("ExplicitURLWins", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("DATABASE_URL", "postgres://u:p@elsewhere:5432/other")
		t.Setenv("POSTGRES_HOST", "db.internal")

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, "postgres://u:p@elsewhere:5432/other", cfg.DatabaseURL)
	})

	t.Run("CORSList", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("CORS_ORIGINS", "https://app.stagelink.io, https://staging.stagelink.io")

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"https://app.stagelink.io", "https://staging.stagelink.io"}, cfg.CORSOrigins)
	})
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("ENGINE_CONFIG", "")
	t.Setenv("AUTH_REQUIRED", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, DefaultEngine(), cfg.Engine)
	assert.Equal(t, "file:priority_agent.db?_foreign_keys=on&_busy_timeout=5000", cfg.ConnString())
}

func TestLoadEngineFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scoring:
  urgency_scale: 3
stress:
  entry_threshold: 8
  exit_threshold: 4
agent:
  cooldown: 10m
`), 0o600))

	t.Setenv("ENGINE_CONFIG", path)
	t.Setenv("STRESS_EXIT", "2.5")
	t.Setenv("DB_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.Engine.Scoring.UrgencyScale)
	assert.Equal(t, 8.0, cfg.Engine.Stress.Entry)
	assert.Equal(t, 2.5, cfg.Engine.Stress.Exit)
	assert.Equal(t, 10*time.Minute, cfg.Engine.Agent.Cooldown)
	assert.Equal(t, DefaultEngine().Preferences, cfg.Engine.Preferences, "untouched sections keep defaults")
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("ENGINE_CONFIG", "")

	t.Setenv("DB_DRIVER", "mysql")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("STRESS_ENTRY", "1")
	t.Setenv("STRESS_EXIT", "2")
	_, err = Load()
	assert.Error(t, err, "entry must exceed exit")

	t.Setenv("STRESS_ENTRY", "")
	t.Setenv("STRESS_EXIT", "")
	t.Setenv("AUTH_REQUIRED", "true")
	t.Setenv("JWT_SECRET", "")
	_, err = Load()
	assert.Error(t, err)
}

func TestPostgresConnString(t *testing.T) {
	cfg := &Config{DBDriver: "postgres", DBHost: "db", DBPort: 5433, DBUser: "u", DBPassword: "p", DBName: "tasks"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=tasks sslmode=disable", cfg.ConnString())
}

func TestGetList(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, getList("CORS_ORIGINS", nil))
}

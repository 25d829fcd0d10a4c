package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("PYMOL_AGENT_ARCHIVE_DSN", "")
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", cfg.Model.Name)
	assert.Equal(t, "text-embedding-004", cfg.Model.EmbeddingModel)
	assert.Equal(t, 10, cfg.Memory.ShortTermCapacity)
	assert.Equal(t, 200, cfg.Memory.LongTermCapacity)
	assert.Equal(t, 0.7, cfg.Memory.PromotionThreshold)
	assert.Equal(t, 2000, cfg.Memory.DigestBudget)
	assert.Equal(t, 30*time.Second, cfg.Agent.ToolTimeout.Std())
	assert.Equal(t, 15*time.Second, cfg.PyMOL.Timeout.Std())
	assert.Equal(t, 8, cfg.Agent.MaxRounds)
	assert.False(t, cfg.Agent.AutoConfirm)
	assert.Equal(t, "http://127.0.0.1:9123", cfg.PyMOL.Endpoint)
	assert.Empty(t, cfg.Archive.Driver)
	assert.False(t, cfg.Desktop.Enabled)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
model:
  name: gemini-2.5-flash
  requests_per_minute: 15
memory:
  short_term_capacity: 4
  promotion_threshold: 0.5
agent:
  tool_timeout: 5s
  max_rounds: 3
  auto_confirm: true
archive:
  driver: sqlite
  dsn: /tmp/agent.db
desktop:
  enabled: true
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", cfg.Model.Name)
	assert.Equal(t, 15, cfg.Model.RequestsPerMinute)
	assert.Equal(t, 4, cfg.Memory.ShortTermCapacity)
	assert.Equal(t, 0.5, cfg.Memory.PromotionThreshold)
	assert.Equal(t, 200, cfg.Memory.LongTermCapacity, "unset fields keep defaults")
	assert.Equal(t, 5*time.Second, cfg.Agent.ToolTimeout.Std())
	assert.Equal(t, 3, cfg.Agent.MaxRounds)
	assert.True(t, cfg.Agent.AutoConfirm)
	assert.Equal(t, "sqlite", cfg.Archive.Driver)
	assert.True(t, cfg.Desktop.Enabled)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
model:
  api_key: from-file
archive:
  driver: sqlite
  dsn: from-file
`)

	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("PYMOL_AGENT_ARCHIVE_DSN", "from-env-dsn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Model.APIKey)
	assert.Equal(t, "from-env-dsn", cfg.Archive.DSN)
}

func TestLoadGoogleKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "google-key", cfg.Model.APIKey)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "model: ["))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidation(t *testing.T) {
	cases := map[string]struct {
		yaml    string
		wantErr string
	}{
		"bad short capacity":  {"memory:\n  short_term_capacity: -1\n", "short_term_capacity"},
		"bad long capacity":   {"memory:\n  long_term_capacity: -5\n", "long_term_capacity"},
		"bad threshold":       {"memory:\n  promotion_threshold: 1.5\n", "promotion_threshold"},
		"bad rounds":          {"agent:\n  max_rounds: -2\n", "max_rounds"},
		"bad timeout":         {"agent:\n  tool_timeout: -3s\n", "tool_timeout"},
		"bad archive driver":  {"archive:\n  driver: mysql\n  dsn: x\n", "archive.driver"},
		"archive without dsn": {"archive:\n  driver: sqlite\n", "archive.dsn"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("PYMOL_AGENT_ARCHIVE_DSN", "")
			_, err := Load(writeConfig(t, tc.yaml))
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

package kernel_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/sommelier/kernel"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := kernel.DefaultConfig()

	assert.Equal(t, "sommelier", cfg.Hub.Name)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, config.DriverMemory, cfg.DeadLetter.Driver)
	assert.Empty(t, cfg.DeadLetter.ReplaySchedule)
	assert.Equal(t, config.SourceKnowledgeGraph, cfg.Coordinator.RecommendationSource)
	assert.Empty(t, cfg.LLM.Provider)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "slog", cfg.Observer)
	assert.Equal(t, 3, cfg.RecommendationLimit)
}

func TestConfig_Merge(t *testing.T) {
	cfg := kernel.DefaultConfig()

	cfg.Merge(&kernel.Config{
		Hub:                 config.HubConfig{Name: "merged"},
		DeadLetter:          config.DeadLetterConfig{Driver: config.DriverRedis, DSN: "redis://localhost:6379/0"},
		Observer:            "noop",
		RecommendationLimit: 5,
	})

	assert.Equal(t, "merged", cfg.Hub.Name)
	assert.Equal(t, 10*time.Second, cfg.Hub.DefaultTimeout.Std())
	assert.Equal(t, config.DriverRedis, cfg.DeadLetter.Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.DeadLetter.DSN)
	assert.Equal(t, "dead_letters", cfg.DeadLetter.Key)
	assert.Equal(t, "noop", cfg.Observer)
	assert.Equal(t, 5, cfg.RecommendationLimit)
}

func TestConfig_Merge_ZeroValuesPreserveDefaults(t *testing.T) {
	cfg := kernel.DefaultConfig()
	cfg.Merge(&kernel.Config{})

	assert.Equal(t, kernel.DefaultConfig(), cfg)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"hub": {"name": "json-bus", "default_timeout": "2s"},
		"breaker": {"failure_threshold": 7},
		"coordinator": {"stage_timeout": "750ms"}
	}`)

	cfg, err := kernel.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "json-bus", cfg.Hub.Name)
	assert.Equal(t, 2*time.Second, cfg.Hub.DefaultTimeout.Std())
	assert.Equal(t, 7, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 2, cfg.Breaker.SuccessThreshold)
	assert.Equal(t, 750*time.Millisecond, cfg.Coordinator.StageTimeout.Std())
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
hub:
  name: yaml-bus
  default_timeout: 5s
dead_letter:
  driver: sqlite
  dsn: /var/lib/sommelier/dl.db
  replay_schedule: "0 * * * *"
  retry:
    max_attempts: 4
coordinator:
  recommendation_source: llm
llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
`)

	cfg, err := kernel.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "yaml-bus", cfg.Hub.Name)
	assert.Equal(t, 5*time.Second, cfg.Hub.DefaultTimeout.Std())
	assert.Equal(t, config.DriverSQLite, cfg.DeadLetter.Driver)
	assert.Equal(t, "/var/lib/sommelier/dl.db", cfg.DeadLetter.DSN)
	assert.Equal(t, "0 * * * *", cfg.DeadLetter.ReplaySchedule)
	assert.Equal(t, 4, cfg.DeadLetter.Retry.MaxAttempts)
	assert.Equal(t, config.SourceLLM, cfg.Coordinator.RecommendationSource)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.LLM.Model)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("SOMMELIER_HUB_NAME", "env-bus")
	t.Setenv("SOMMELIER_BREAKER_TIMEOUT", "45s")
	t.Setenv("SOMMELIER_DEAD_LETTER_DRIVER", "postgres")
	t.Setenv("SOMMELIER_DEAD_LETTER_RETRY_MAX_ATTEMPTS", "9")
	t.Setenv("SOMMELIER_SERVER_ADDR", ":9999")
	t.Setenv("SOMMELIER_CATALOG_PATH", "/etc/sommelier/catalog.yaml")
	t.Setenv("SOMMELIER_OBSERVER", "noop")

	cfg, err := kernel.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "env-bus", cfg.Hub.Name)
	assert.Equal(t, 45*time.Second, cfg.Breaker.Timeout.Std())
	assert.Equal(t, config.DriverPostgres, cfg.DeadLetter.Driver)
	assert.Equal(t, 9, cfg.DeadLetter.Retry.MaxAttempts)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "/etc/sommelier/catalog.yaml", cfg.Catalog.CatalogPath)
	assert.Equal(t, "noop", cfg.Observer)
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "config.json", `{"hub": {"name": "file-bus"}}`)
	t.Setenv("SOMMELIER_HUB_NAME", "env-bus")

	cfg, err := kernel.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env-bus", cfg.Hub.Name)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := kernel.LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := kernel.LoadConfig(writeFile(t, "config.json", `{"hub":`))
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := kernel.LoadConfig(writeFile(t, "config.toml", `name = "x"`))
		assert.ErrorContains(t, err, "unsupported config format")
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("SOMMELIER_HUB_DEFAULT_TIMEOUT", "soon")
		_, err := kernel.LoadConfig("")
		assert.ErrorContains(t, err, "failed to read environment")
	})
}

package kernel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/sommelier/graph"
	"github.com/tailored-agentic-units/sommelier/llm"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
	"github.com/tailored-agentic-units/sommelier/server"
)

// EnvPrefix prefixes every environment variable the configuration reads.
const EnvPrefix = "SOMMELIER_"

const (
	defaultObserver            = "slog"
	defaultRecommendationLimit = 3
)

// Config holds initialization parameters for all subsystems. Each section
// delegates to that subsystem's config type.
type Config struct {
	Hub         config.HubConfig         `json:"hub" yaml:"hub" envPrefix:"HUB_"`
	Breaker     config.BreakerConfig     `json:"breaker" yaml:"breaker" envPrefix:"BREAKER_"`
	Retry       config.RetryConfig       `json:"retry" yaml:"retry" envPrefix:"RETRY_"`
	DeadLetter  config.DeadLetterConfig  `json:"dead_letter" yaml:"dead_letter" envPrefix:"DEAD_LETTER_"`
	Coordinator config.CoordinatorConfig `json:"coordinator" yaml:"coordinator" envPrefix:"COORDINATOR_"`
	LLM         llm.Config               `json:"llm" yaml:"llm" envPrefix:"LLM_"`
	Catalog     graph.Config             `json:"catalog" yaml:"catalog"`
	Server      server.Config            `json:"server" yaml:"server" envPrefix:"SERVER_"`

	// Observer names the observability.Registry entry events go to.
	Observer string `json:"observer,omitempty" yaml:"observer,omitempty" env:"OBSERVER"`

	// RecommendationLimit caps the wines the knowledge graph agent returns.
	RecommendationLimit int `json:"recommendation_limit,omitempty" yaml:"recommendation_limit,omitempty" env:"RECOMMENDATION_LIMIT"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Hub:                 config.DefaultHubConfig(),
		Breaker:             config.DefaultBreakerConfig(),
		Retry:               config.DefaultRetryConfig(),
		DeadLetter:          config.DefaultDeadLetterConfig(),
		Coordinator:         config.DefaultCoordinatorConfig(),
		LLM:                 llm.DefaultConfig(),
		Catalog:             graph.DefaultConfig(),
		Server:              server.DefaultConfig(),
		Observer:            defaultObserver,
		RecommendationLimit: defaultRecommendationLimit,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Hub.Merge(&source.Hub)
	c.Breaker.Merge(&source.Breaker)
	c.Retry.Merge(&source.Retry)
	c.DeadLetter.Merge(&source.DeadLetter)
	c.Coordinator.Merge(&source.Coordinator)
	c.LLM.Merge(&source.LLM)
	c.Catalog.Merge(&source.Catalog)
	c.Server.Merge(&source.Server)

	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.RecommendationLimit > 0 {
		c.RecommendationLimit = source.RecommendationLimit
	}
}

// LoadConfig merges the file at filename (JSON, or YAML by extension) onto the
// defaults, then applies SOMMELIER_* environment variables, reading a .env file in
// the working directory first when one exists. An empty filename skips the file.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var loaded Config
		switch ext := strings.ToLower(filepath.Ext(filename)); ext {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &loaded)
		case ".json", "":
			err = json.Unmarshal(data, &loaded)
		default:
			return nil, fmt.Errorf("unsupported config format %q", ext)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		cfg.Merge(&loaded)
	}

	_ = godotenv.Load()

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return &cfg, nil
}

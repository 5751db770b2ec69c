package llm

import "fmt"

// Providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const defaultMaxTokens = 1024

// Config selects the LLM provider. An empty Provider disables the LLM.
type Config struct {
	Provider  string `json:"provider,omitempty" yaml:"provider,omitempty" env:"PROVIDER"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty" env:"API_KEY"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty" env:"BASE_URL"`
	MaxTokens int64  `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" env:"MAX_TOKENS"`
	System    string `json:"system,omitempty" yaml:"system,omitempty" env:"SYSTEM"`
}

func DefaultConfig() Config {
	return Config{
		MaxTokens: defaultMaxTokens,
	}
}

func (c *Config) Merge(source *Config) {
	if source.Provider != "" {
		c.Provider = source.Provider
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.MaxTokens > 0 {
		c.MaxTokens = source.MaxTokens
	}
	if source.System != "" {
		c.System = source.System
	}
}

// New creates the provider client named by cfg. It returns nil when Provider is
// empty, meaning the LLM is disabled.
func New(cfg *Config) (Client, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

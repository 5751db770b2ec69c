package config

import "time"

// HubConfig defines configuration for a communication bus instance.
type HubConfig struct {
	// Name identifies the bus in logs and metrics.
	Name string `json:"name" yaml:"name" env:"NAME"`

	// DefaultTimeout bounds request/response exchanges that do not pass their own timeout.
	DefaultTimeout Duration `json:"default_timeout" yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		Name:           "sommelier",
		DefaultTimeout: Duration(10 * time.Second),
	}
}

func (c *HubConfig) Merge(source *HubConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}

	if source.DefaultTimeout > 0 {
		c.DefaultTimeout = source.DefaultTimeout
	}
}

package config

import "time"

// RetryConfig configures a retry manager and the policies built from configuration.
// Exponential backoff is always installed; FixedDelay adds a fixed-delay policy when set.
type RetryConfig struct {
	MaxAttempts int      `json:"max_attempts" yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelay   Duration `json:"base_delay" yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay    Duration `json:"max_delay" yaml:"max_delay" env:"MAX_DELAY"`
	FixedDelay  Duration `json:"fixed_delay,omitempty" yaml:"fixed_delay,omitempty" env:"FIXED_DELAY"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   Duration(100 * time.Millisecond),
		MaxDelay:    Duration(5 * time.Second),
	}
}

func (c *RetryConfig) Merge(source *RetryConfig) {
	if source.MaxAttempts > 0 {
		c.MaxAttempts = source.MaxAttempts
	}

	if source.BaseDelay > 0 {
		c.BaseDelay = source.BaseDelay
	}

	if source.MaxDelay > 0 {
		c.MaxDelay = source.MaxDelay
	}

	if source.FixedDelay > 0 {
		c.FixedDelay = source.FixedDelay
	}
}

package config

import "time"

// BreakerConfig holds the circuit breaker thresholds. The fallback invoked while the
// circuit is open is code, not configuration, and is supplied to breaker.New.
type BreakerConfig struct {
	// FailureThreshold is the failure count at which the circuit opens.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`

	// SuccessThreshold is the success count at which the circuit closes again.
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold" env:"SUCCESS_THRESHOLD"`

	// Timeout is how long the circuit stays open before a call may probe it.
	Timeout Duration `json:"timeout" yaml:"timeout" env:"TIMEOUT"`
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          Duration(30 * time.Second),
	}
}

func (c *BreakerConfig) Merge(source *BreakerConfig) {
	if source.FailureThreshold > 0 {
		c.FailureThreshold = source.FailureThreshold
	}

	if source.SuccessThreshold > 0 {
		c.SuccessThreshold = source.SuccessThreshold
	}

	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
}

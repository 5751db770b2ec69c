package config

// Dead-letter queue drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// DeadLetterConfig selects the dead-letter sink and the optional replay schedule.
type DeadLetterConfig struct {
	// Driver is one of memory, sqlite, postgres, redis.
	Driver string `json:"driver" yaml:"driver" env:"DRIVER"`

	// DSN is the sink location: a file path for sqlite, a connection URL otherwise.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" env:"DSN"`

	// Key names the Redis list or the SQL table holding records.
	Key string `json:"key,omitempty" yaml:"key,omitempty" env:"KEY"`

	// ReplaySchedule is a cron expression; empty disables scheduled replay.
	ReplaySchedule string `json:"replay_schedule,omitempty" yaml:"replay_schedule,omitempty" env:"REPLAY_SCHEDULE"`

	Retry RetryConfig `json:"retry" yaml:"retry" envPrefix:"RETRY_"`
}

func DefaultDeadLetterConfig() DeadLetterConfig {
	return DeadLetterConfig{
		Driver: DriverMemory,
		Key:    "dead_letters",
		Retry:  DefaultRetryConfig(),
	}
}

func (c *DeadLetterConfig) Merge(source *DeadLetterConfig) {
	if source.Driver != "" {
		c.Driver = source.Driver
	}

	if source.DSN != "" {
		c.DSN = source.DSN
	}

	if source.Key != "" {
		c.Key = source.Key
	}

	if source.ReplaySchedule != "" {
		c.ReplaySchedule = source.ReplaySchedule
	}

	c.Retry.Merge(&source.Retry)
}

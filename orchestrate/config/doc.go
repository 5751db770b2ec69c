// Package config provides configuration structures for the orchestration components.
//
// Each component has a plain struct, a DefaultXConfig constructor holding sensible
// defaults, and a Merge method that applies the non-zero values of another instance.
// Configuration is used only during initialization and then turned into domain objects:
//
//	cfg := config.DefaultHubConfig()
//	cfg.Merge(&loaded.Hub)
//	bus := hub.New(cfg, hub.WithLogger(logger))
//
// Durations are expressed with the Duration type, which reads and writes the textual
// form accepted by time.ParseDuration ("250ms", "10s") in JSON, YAML, and environment
// variables.
//
// # Defaults
//
//	HubConfig:         name "sommelier", request timeout 10s
//	BreakerConfig:     5 failures open, 2 successes close, 30s open timeout
//	RetryConfig:       3 attempts, exponential 100ms base capped at 5s
//	DeadLetterConfig:  in-memory queue, no replay schedule
//	CoordinatorConfig: knowledge-graph recommendations, 10s stage timeout
package config

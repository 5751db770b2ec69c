// Package retry runs operations through a circuit breaker with pluggable retry policies.
//
// Every attempt goes through the breaker, so an open circuit answers each remaining
// attempt immediately. A failed attempt is retried when any policy allows it, after
// the longest delay any policy asks for. When attempts run out, or no policy allows
// another one, the last error is returned.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tailored-agentic-units/sommelier/observability"
	"github.com/tailored-agentic-units/sommelier/orchestrate/breaker"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
)

const (
	EventAttemptFailed observability.EventType = "retry.attempt.failed"
	EventExhausted     observability.EventType = "retry.exhausted"
)

// Sleeper waits between attempts. It returns early with ctx's error when ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Manager struct {
	name        string
	maxAttempts int
	breaker     *breaker.CircuitBreaker
	policies    []Policy

	sleep    Sleeper
	logger   *slog.Logger
	observer observability.Observer
	attempts *prometheus.CounterVec
}

type Option func(*Manager)

func WithSleeper(sleep Sleeper) Option {
	return func(m *Manager) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithObserver(observer observability.Observer) Option {
	return func(m *Manager) {
		m.observer = observability.OrNoOp(observer)
	}
}

// WithRegisterer exports attempt outcomes on sommelier_retry_attempts_total. Managers
// sharing a registerer must have distinct names.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		m.attempts = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name:        "sommelier_retry_attempts_total",
			Help:        "Attempts made by the retry manager, by outcome.",
			ConstLabels: prometheus.Labels{"manager": m.name},
		}, []string{"outcome"})
	}
}

// New builds a manager. Policies are consulted in order; with none, failures are
// never retried.
func New(name string, maxAttempts int, cb *breaker.CircuitBreaker, policies []Policy, opts ...Option) *Manager {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	m := &Manager{
		name:        name,
		maxAttempts: maxAttempts,
		breaker:     cb,
		policies:    policies,
		sleep:       contextSleep,
		logger:      slog.Default(),
		observer:    observability.NoOpObserver{},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// FromConfig builds a manager with exponential backoff and, when cfg.FixedDelay is
// set, a fixed-delay policy. retryOn restricts both policies.
func FromConfig(name string, cfg config.RetryConfig, cb *breaker.CircuitBreaker, retryOn []Matcher, opts ...Option) *Manager {
	merged := config.DefaultRetryConfig()
	merged.Merge(&cfg)

	policies := []Policy{
		ExponentialBackoff{
			Base:    merged.BaseDelay.Std(),
			Max:     merged.MaxDelay.Std(),
			RetryOn: retryOn,
		},
	}
	if merged.FixedDelay > 0 {
		policies = append(policies, FixedDelay{Wait: merged.FixedDelay.Std(), RetryOn: retryOn})
	}

	return New(name, merged.MaxAttempts, cb, policies, opts...)
}

func (m *Manager) Breaker() *breaker.CircuitBreaker {
	return m.breaker
}

// Execute runs fn until it succeeds, a policy vetoes another attempt, or maxAttempts
// is reached.
func (m *Manager) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	var lastErr error

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		value, err := m.breaker.Execute(ctx, fn)
		if err == nil {
			m.record("success")
			return value, nil
		}
		lastErr = err

		if attempt == m.maxAttempts {
			break
		}

		retry, delay := m.next(attempt, err)
		if !retry {
			m.record("vetoed")
			m.logger.DebugContext(
				ctx,
				"retry vetoed by policies",
				slog.String("manager", m.name),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return nil, err
		}

		m.record("retry")
		m.logger.DebugContext(
			ctx,
			"attempt failed, retrying",
			slog.String("manager", m.name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		m.observer.OnEvent(ctx, observability.Event{
			Type:      EventAttemptFailed,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    m.name,
			Data: map[string]any{
				"attempt": attempt,
				"delay":   delay.String(),
				"error":   err.Error(),
			},
		})

		if err := m.sleep(ctx, delay); err != nil {
			return nil, lastErr
		}
	}

	m.record("exhausted")
	m.logger.WarnContext(
		ctx,
		"retry attempts exhausted",
		slog.String("manager", m.name),
		slog.Int("attempts", m.maxAttempts),
		slog.String("error", lastErr.Error()),
	)
	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventExhausted,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    m.name,
		Data: map[string]any{
			"attempts": m.maxAttempts,
			"error":    lastErr.Error(),
		},
	})

	return nil, lastErr
}

// next returns whether any policy allows another attempt and the longest delay
// among the policies.
func (m *Manager) next(attempt int, err error) (bool, time.Duration) {
	retry := false
	var delay time.Duration

	for _, policy := range m.policies {
		if policy.ShouldRetry(attempt, err) {
			retry = true
		}
		if d := policy.Delay(attempt); d > delay {
			delay = d
		}
	}

	return retry, delay
}

func (m *Manager) record(outcome string) {
	if m.attempts != nil {
		m.attempts.WithLabelValues(outcome).Inc()
	}
}

// Do runs fn through m and converts the result back to T.
func Do[T any](ctx context.Context, m *Manager, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	value, err := m.Execute(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil || value == nil {
		return zero, err
	}

	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", m.name, value)
	}
	return typed, nil
}

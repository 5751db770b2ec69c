// Package breaker implements a three-state circuit breaker.
//
// A breaker starts CLOSED. Once FailureThreshold failures accumulate it opens, and
// calls are answered by the fallback without running the protected function. The
// first call after Timeout has elapsed since the last failure moves the breaker to
// HALF_OPEN and runs the function; SuccessThreshold successes close it again with its
// counters zeroed, and any failure counts toward reopening it.
//
// The OPEN to HALF_OPEN transition is evaluated lazily when a call arrives; no timer
// runs in the background.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tailored-agentic-units/sommelier/observability"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
)

// ErrCircuitOpen is returned by the default fallback while the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// gaugeValue is the numeric form exported on sommelier_breaker_state.
func (s State) gaugeValue() float64 {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}

const EventStateChanged observability.EventType = "breaker.state"

// Fallback answers a call the breaker refuses to run. It receives ErrCircuitOpen and
// may return it, or any other error, to fail the call instead of degrading it.
type Fallback func(ctx context.Context, err error) (any, error)

// RejectFallback fails every refused call with the error it is given.
func RejectFallback(ctx context.Context, err error) (any, error) {
	return nil, err
}

// Clock supplies the current time. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Snapshot is a point-in-time view of the breaker.
type Snapshot struct {
	State        State
	FailureCount int
	SuccessCount int
	LastFailure  time.Time
}

type CircuitBreaker struct {
	name             string
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	fallback         Fallback

	state        State
	failureCount int
	successCount int
	lastFailure  time.Time
	mu           sync.Mutex

	clock      Clock
	logger     *slog.Logger
	observer   observability.Observer
	registerer prometheus.Registerer
	gauge      prometheus.Gauge
	rejections prometheus.Counter
}

type Option func(*CircuitBreaker)

func WithFallback(fallback Fallback) Option {
	return func(cb *CircuitBreaker) {
		if fallback != nil {
			cb.fallback = fallback
		}
	}
}

func WithClock(clock Clock) Option {
	return func(cb *CircuitBreaker) {
		if clock != nil {
			cb.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cb *CircuitBreaker) {
		if logger != nil {
			cb.logger = logger
		}
	}
}

func WithObserver(observer observability.Observer) Option {
	return func(cb *CircuitBreaker) {
		cb.observer = observability.OrNoOp(observer)
	}
}

// WithRegisterer exports the breaker's state and rejections. Breakers sharing a
// registerer must have distinct names.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cb *CircuitBreaker) {
		cb.registerer = reg
	}
}

// New builds a breaker named name. Zero values in cfg fall back to the defaults.
func New(name string, cfg config.BreakerConfig, opts ...Option) *CircuitBreaker {
	merged := config.DefaultBreakerConfig()
	merged.Merge(&cfg)

	cb := &CircuitBreaker{
		name:             name,
		failureThreshold: merged.FailureThreshold,
		successThreshold: merged.SuccessThreshold,
		timeout:          merged.Timeout.Std(),
		fallback:         RejectFallback,
		state:            StateClosed,
		clock:            systemClock{},
		logger:           slog.Default(),
		observer:         observability.NoOpObserver{},
		registerer:       prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		opt(cb)
	}

	factory := promauto.With(cb.registerer)
	labels := prometheus.Labels{"breaker": name}
	cb.gauge = factory.NewGauge(prometheus.GaugeOpts{
		Name:        "sommelier_breaker_state",
		Help:        "Circuit state: 0 closed, 1 open, 2 half-open.",
		ConstLabels: labels,
	})
	cb.rejections = factory.NewCounter(prometheus.CounterOpts{
		Name:        "sommelier_breaker_rejections_total",
		Help:        "Calls answered by the fallback because the circuit was open.",
		ConstLabels: labels,
	})

	return cb
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Snapshot{
		State:        cb.state,
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
		LastFailure:  cb.lastFailure,
	}
}

// Execute runs fn unless the circuit is open, in which case the fallback answers.
// Errors from fn are returned unchanged after being counted.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if !cb.admit(ctx) {
		cb.rejections.Inc()
		return cb.fallback(ctx, fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen))
	}

	value, err := fn(ctx)
	if err != nil {
		cb.recordFailure(ctx)
		return nil, err
	}

	cb.recordSuccess(ctx)
	return value, nil
}

// admit reports whether a call may run, moving OPEN to HALF_OPEN once the timeout
// has elapsed since the last failure.
func (cb *CircuitBreaker) admit(ctx context.Context) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return true
	}

	if cb.clock.Now().Sub(cb.lastFailure) < cb.timeout {
		return false
	}

	cb.successCount = 0
	cb.transition(ctx, StateHalfOpen)
	return true
}

func (cb *CircuitBreaker) recordSuccess(ctx context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successCount++
	if cb.successCount >= cb.successThreshold {
		cb.failureCount = 0
		cb.successCount = 0
		if cb.state != StateClosed {
			cb.transition(ctx, StateClosed)
		}
	}
}

func (cb *CircuitBreaker) recordFailure(ctx context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.successCount = 0
	cb.lastFailure = cb.clock.Now()

	if cb.failureCount >= cb.failureThreshold && cb.state != StateOpen {
		cb.transition(ctx, StateOpen)
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(ctx context.Context, to State) {
	from := cb.state
	cb.state = to
	cb.gauge.Set(to.gaugeValue())

	level := observability.LevelInfo
	if to == StateOpen {
		level = observability.LevelWarning
	}

	cb.logger.Log(
		ctx,
		level.SlogLevel(),
		"circuit state changed",
		slog.String("breaker", cb.name),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Int("failures", cb.failureCount),
	)

	cb.observer.OnEvent(ctx, observability.Event{
		Type:      EventStateChanged,
		Level:     level,
		Timestamp: cb.clock.Now(),
		Source:    cb.name,
		Data: map[string]any{
			"from":     string(from),
			"to":       string(to),
			"failures": cb.failureCount,
		},
	})
}

// Do runs fn through cb and converts the result back to T. A fallback value that is
// not a T is reported as an error.
func Do[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	value, err := cb.Execute(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if value == nil {
		return zero, nil
	}

	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%s: fallback returned %T", cb.name, value)
	}
	return typed, nil
}

// Protect wraps fn so that every call goes through cb.
func Protect[T any](cb *CircuitBreaker, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return Do(ctx, cb, fn)
	}
}

package breaker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/sommelier/observability"
	"github.com/tailored-agentic-units/sommelier/orchestrate/breaker"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
)

type manualClock struct {
	now time.Time
	mu  sync.Mutex
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errUpstream = errors.New("upstream unavailable")

func testConfig() config.BreakerConfig {
	return config.BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          config.Duration(time.Minute),
	}
}

func failing(calls *int) func(context.Context) (any, error) {
	return func(context.Context) (any, error) {
		*calls++
		return nil, errUpstream
	}
}

func succeeding(calls *int) func(context.Context) (any, error) {
	return func(context.Context) (any, error) {
		*calls++
		return "ok", nil
	}
}

func tripOpen(t *testing.T, cb *breaker.CircuitBreaker) {
	t.Helper()
	var calls int
	for range 3 {
		_, err := cb.Execute(context.Background(), failing(&calls))
		require.ErrorIs(t, err, errUpstream)
	}
	require.Equal(t, breaker.StateOpen, cb.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cb := breaker.New("graph", testConfig(), breaker.WithClock(newManualClock()))

	var calls int
	for i := range 2 {
		_, err := cb.Execute(context.Background(), failing(&calls))
		assert.ErrorIs(t, err, errUpstream)
		assert.Equal(t, breaker.StateClosed, cb.State(), "after failure %d", i+1)
	}

	_, err := cb.Execute(context.Background(), failing(&calls))
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, breaker.StateOpen, cb.State())
	assert.Equal(t, 3, cb.Snapshot().FailureCount)
}

func TestBreaker_OpenCallsFallbackWithoutRunning(t *testing.T) {
	clock := newManualClock()
	cb := breaker.New("graph", testConfig(), breaker.WithClock(clock))
	tripOpen(t, cb)

	clock.Advance(30 * time.Second)

	var calls int
	_, err := cb.Execute(context.Background(), succeeding(&calls))
	assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.Zero(t, calls)
	assert.Equal(t, breaker.StateOpen, cb.State())
}

func TestBreaker_FallbackCanDegrade(t *testing.T) {
	clock := newManualClock()
	cb := breaker.New("llm", testConfig(),
		breaker.WithClock(clock),
		breaker.WithFallback(func(ctx context.Context, err error) (any, error) {
			return "cached answer", nil
		}),
	)
	tripOpen(t, cb)

	var calls int
	value, err := cb.Execute(context.Background(), succeeding(&calls))
	require.NoError(t, err)
	assert.Equal(t, "cached answer", value)
	assert.Zero(t, calls)
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	clock := newManualClock()
	recorder := observability.NewRecorder()
	cb := breaker.New("graph", testConfig(), breaker.WithClock(clock), breaker.WithObserver(recorder))
	tripOpen(t, cb)

	clock.Advance(time.Minute)

	var calls int
	value, err := cb.Execute(context.Background(), succeeding(&calls))
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 1, calls)
	assert.Equal(t, breaker.StateHalfOpen, cb.State())

	_, err = cb.Execute(context.Background(), succeeding(&calls))
	require.NoError(t, err)
	assert.Equal(t, breaker.StateClosed, cb.State())

	snap := cb.Snapshot()
	assert.Zero(t, snap.FailureCount)
	assert.Zero(t, snap.SuccessCount)

	var transitions []string
	for _, event := range recorder.OfType(breaker.EventStateChanged) {
		transitions = append(transitions, event.Data["to"].(string))
	}
	assert.Equal(t, []string{"OPEN", "HALF_OPEN", "CLOSED"}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newManualClock()
	cb := breaker.New("graph", testConfig(), breaker.WithClock(clock))
	tripOpen(t, cb)

	clock.Advance(time.Minute)

	var calls int
	_, err := cb.Execute(context.Background(), failing(&calls))
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 1, calls)
	assert.Equal(t, breaker.StateOpen, cb.State())

	// lastFailure moved forward, so the circuit stays open for another full timeout.
	clock.Advance(59 * time.Second)
	_, err = cb.Execute(context.Background(), succeeding(&calls))
	assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
}

func TestBreaker_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	clock := newManualClock()
	cb := breaker.New("graph", testConfig(), breaker.WithClock(clock), breaker.WithRegisterer(reg))
	tripOpen(t, cb)

	var calls int
	_, _ = cb.Execute(context.Background(), succeeding(&calls))
	_, _ = cb.Execute(context.Background(), succeeding(&calls))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, family := range families {
		metric := family.GetMetric()[0]
		switch family.GetName() {
		case "sommelier_breaker_state":
			values[family.GetName()] = metric.GetGauge().GetValue()
		case "sommelier_breaker_rejections_total":
			values[family.GetName()] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, values["sommelier_breaker_state"])
	assert.Equal(t, 2.0, values["sommelier_breaker_rejections_total"])

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDo_Typed(t *testing.T) {
	cb := breaker.New("typed", testConfig())

	n, err := breaker.Do(context.Background(), cb, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestDo_FallbackTypeMismatch(t *testing.T) {
	clock := newManualClock()
	cb := breaker.New("typed", testConfig(),
		breaker.WithClock(clock),
		breaker.WithFallback(func(ctx context.Context, err error) (any, error) {
			return "not an int", nil
		}),
	)
	tripOpen(t, cb)

	_, err := breaker.Do(context.Background(), cb, func(context.Context) (int, error) {
		return 1, nil
	})
	assert.ErrorContains(t, err, "fallback returned string")
}

func TestProtect(t *testing.T) {
	cb := breaker.New("protected", testConfig())

	var calls int
	guarded := breaker.Protect(cb, func(context.Context) (string, error) {
		calls++
		return "", errUpstream
	})

	for range 3 {
		_, err := guarded(context.Background())
		assert.ErrorIs(t, err, errUpstream)
	}

	_, err := guarded(context.Background())
	assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.Equal(t, 3, calls)
}

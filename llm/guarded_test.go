package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/sommelier/llm"
	"github.com/tailored-agentic-units/sommelier/orchestrate/breaker"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
	"github.com/tailored-agentic-units/sommelier/orchestrate/retry"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestGuarded_RetriesUntilSuccess(t *testing.T) {
	unavailable := errors.New("503")
	client := &scriptedClient{
		errs:    []error{unavailable, unavailable},
		replies: []string{"", "", "Chianti"},
	}

	cb := breaker.New("llm", config.BreakerConfig{FailureThreshold: 10})
	manager := retry.FromConfig("llm", config.RetryConfig{MaxAttempts: 3}, cb, nil, retry.WithSleeper(noSleep))

	reply, err := llm.NewGuarded(client, manager).SendPrompt(context.Background(), "pasta?", "corr")
	require.NoError(t, err)
	assert.Equal(t, "Chianti", reply)
	assert.Len(t, client.prompts, 3)
}

func TestGuarded_OpenCircuitStopsCalls(t *testing.T) {
	unavailable := errors.New("503")
	client := &scriptedClient{errs: []error{unavailable, unavailable, unavailable, unavailable}}

	cb := breaker.New("llm", config.BreakerConfig{FailureThreshold: 2, Timeout: config.Duration(time.Hour)})
	manager := retry.FromConfig("llm", config.RetryConfig{MaxAttempts: 4}, cb, nil, retry.WithSleeper(noSleep))

	_, err := llm.NewGuarded(client, manager).SendPrompt(context.Background(), "pasta?", "corr")
	require.Error(t, err)
	assert.ErrorIs(t, err, breaker.ErrCircuitOpen)
	assert.Len(t, client.prompts, 2)
	assert.Equal(t, breaker.StateOpen, cb.State())
}

package kernel_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/sommelier/agents"
	"github.com/tailored-agentic-units/sommelier/kernel"
	"github.com/tailored-agentic-units/sommelier/observability"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
	"github.com/tailored-agentic-units/sommelier/orchestrate/coordinator"
	"github.com/tailored-agentic-units/sommelier/orchestrate/deadletter"
	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/server"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	prompts []string
}

func (f *fakeLLM) SendPrompt(ctx context.Context, prompt, correlationID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newKernel(t *testing.T, cfg *kernel.Config, opts ...kernel.Option) *kernel.Kernel {
	t.Helper()

	opts = append([]kernel.Option{kernel.WithLogger(quietLogger())}, opts...)
	k, err := kernel.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { k.Close() })
	return k
}

func TestNew_RecommendsFromCatalog(t *testing.T) {
	k := newKernel(t, nil)

	rec, err := k.Recommend(context.Background(), sommelier.Request{
		UserID:      "u1",
		Preferences: &sommelier.Preferences{WineType: "red"},
	})
	require.NoError(t, err)

	assert.False(t, rec.Fallback)
	assert.Equal(t, config.SourceKnowledgeGraph, rec.Source)
	require.Len(t, rec.Wines, 3)
	for _, wine := range rec.Wines {
		assert.Equal(t, "red", wine.Type)
	}
	assert.NotEmpty(t, rec.Explanation)

	records, err := k.Queue().All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNew_RegistersAgents(t *testing.T) {
	k := newKernel(t, nil)

	for _, id := range []string{
		sommelier.AgentCoordinator,
		sommelier.AgentInputValidation,
		sommelier.AgentValueAnalysis,
		sommelier.AgentUserPreference,
		sommelier.AgentMCPAdapter,
		sommelier.AgentRecommendation,
		sommelier.AgentLLMRecommendation,
		sommelier.AgentExplanation,
		sommelier.AgentFallback,
	} {
		_, ok := k.Bus().Agent(id)
		assert.True(t, ok, id)
	}
}

func TestRecommend_EmptyRequestIsDeadLettered(t *testing.T) {
	k := newKernel(t, &kernel.Config{
		Coordinator: config.CoordinatorConfig{FallbackMessage: "have a glass of water"},
	})
	ctx := context.Background()

	rec, err := k.Recommend(ctx, sommelier.Request{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, rec.Fallback)
	assert.Equal(t, "have a glass of water", rec.Message)

	records, err := k.Queue().All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	original := records[0]
	assert.Equal(t, sommelier.StageRequestTypeDetermination, original.Stage())
	assert.False(t, original.Recoverable())

	replayed, err := k.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)

	records, err = k.Queue().All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEqual(t, original.ID, records[0].ID)
	assert.Equal(t, original.ID, records[0].Metadata[deadletter.MetaReplayedFrom])
	assert.Equal(t, 1, records[0].Metadata[deadletter.MetaReplayCount])
}

func TestNew_LLMClientOverride(t *testing.T) {
	llm := &fakeLLM{reply: "Try a chilled Beaujolais."}
	k := newKernel(t, nil, kernel.WithLLMClient(llm))

	rec, err := k.Recommend(context.Background(), sommelier.Request{})
	require.NoError(t, err)

	assert.True(t, rec.Fallback)
	assert.Equal(t, "Try a chilled Beaujolais.", rec.Message)
	assert.Len(t, llm.prompts, 1)
}

func TestNew_SQLiteDeadLetters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead.db")
	k := newKernel(t, &kernel.Config{
		DeadLetter: config.DeadLetterConfig{Driver: config.DriverSQLite, DSN: path},
	})
	ctx := context.Background()

	_, err := k.Recommend(ctx, sommelier.Request{UserID: "u1"})
	require.NoError(t, err)

	records, err := k.Queue().All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, sommelier.StageRequestTypeDetermination, records[0].Stage())
	assert.FileExists(t, path)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		cfg    kernel.Config
		target error
		text   string
	}{
		{
			name:   "unknown driver",
			cfg:    kernel.Config{DeadLetter: config.DeadLetterConfig{Driver: "mongo"}},
			target: kernel.ErrUnknownDriver,
		},
		{
			name:   "postgres without dsn",
			cfg:    kernel.Config{DeadLetter: config.DeadLetterConfig{Driver: config.DriverPostgres}},
			target: kernel.ErrMissingDSN,
		},
		{
			name:   "redis without dsn",
			cfg:    kernel.Config{DeadLetter: config.DeadLetterConfig{Driver: config.DriverRedis}},
			target: kernel.ErrMissingDSN,
		},
		{
			name: "invalid schedule",
			cfg:  kernel.Config{DeadLetter: config.DeadLetterConfig{ReplaySchedule: "every tuesday"}},
			text: "invalid replay schedule",
		},
		{
			name: "unknown observer",
			cfg:  kernel.Config{Observer: "otel"},
			text: "unknown observer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			k, err := kernel.New(&cfg, kernel.WithLogger(quietLogger()))

			require.Error(t, err)
			assert.Nil(t, k)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			if tt.text != "" {
				assert.ErrorContains(t, err, tt.text)
			}
		})
	}
}

func TestNew_UnknownLLMProvider(t *testing.T) {
	cfg := kernel.DefaultConfig()
	cfg.LLM.Provider = "llama"

	_, err := kernel.New(&cfg, kernel.WithLogger(quietLogger()))
	assert.ErrorContains(t, err, "unknown provider")
}

func TestNew_ObserverReceivesEvents(t *testing.T) {
	recorder := observability.NewRecorder()
	k := newKernel(t, nil, kernel.WithObserver(recorder))

	_, err := k.Recommend(context.Background(), sommelier.Request{})
	require.NoError(t, err)

	_, err = k.Replay(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, recorder.OfType(coordinator.EventFallback))
	require.Len(t, recorder.OfType(kernel.EventReplay), 1)
	assert.Equal(t, 1, recorder.OfType(kernel.EventReplay)[0].Data["count"])
}

func TestNew_RegistryGathersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	k := newKernel(t, nil, kernel.WithRegistry(reg))
	assert.Same(t, reg, k.Registry())

	_, err := k.Recommend(context.Background(), sommelier.Request{
		Preferences: &sommelier.Preferences{WineType: "white"},
	})
	require.NoError(t, err)

	// graph and dead-letters; the llm breaker only exists when a provider is set.
	count, err := testutil.GatherAndCount(reg, "sommelier_breaker_state")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "sommelier_bus_messages_routed_total")
	require.NoError(t, err)
	assert.Positive(t, count)
}

func TestRecommend_RecoverableRecommendationFailureIsRecorded(t *testing.T) {
	k := newKernel(t, nil)
	ctx := context.Background()

	var calls atomic.Int32
	k.Bus().RegisterMessageHandler(
		sommelier.AgentRecommendation,
		sommelier.TypeRecommendationRequest,
		func(ctx context.Context, msg *messaging.Message) messaging.Result[*messaging.Message] {
			if calls.Add(1) == 1 {
				return messaging.Fail[*messaging.Message](messaging.NewAgentError(
					messaging.CodeGraphConnection,
					"graph down",
					sommelier.AgentRecommendation,
					msg.CorrelationID,
				).WithRecoverable(true))
			}
			return messaging.Ok(messaging.NewResponse(
				msg,
				sommelier.AgentRecommendation,
				sommelier.TypeRecommendationResult,
				sommelier.Recommendation{Wines: []sommelier.Wine{{ID: "barolo", Name: "Barolo", Type: "red"}}},
			).Build())
		},
	)

	_, err := k.Recommend(ctx, sommelier.Request{Preferences: &sommelier.Preferences{WineType: "red"}})
	require.Error(t, err)
	assert.True(t, messaging.HasCode(err, messaging.CodeGraphConnection))
	assert.Equal(t, int32(1), calls.Load())

	records, err := k.Queue().All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, sommelier.StageRecommendation, records[0].Stage())
	assert.True(t, records[0].Recoverable())

	// the replayer redelivers the stage envelope; success leaves nothing queued
	replayed, err := k.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)
	assert.Equal(t, int32(2), calls.Load())

	records, err = k.Queue().All(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecommend_SlowEnrichmentDoesNotBlockRequest(t *testing.T) {
	release := make(chan struct{})
	slow := agents.EnricherFunc(func(ctx context.Context, q sommelier.RecommendationQuery) (map[string]any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	})

	k := newKernel(t, &kernel.Config{
		Coordinator: config.CoordinatorConfig{StageTimeout: config.Duration(100 * time.Millisecond)},
		Server:      server.Config{RequestTimeout: config.Duration(time.Second)},
	}, kernel.WithEnricher(slow))
	t.Cleanup(func() { close(release) })
	ctx := context.Background()

	rec, err := k.Recommend(ctx, sommelier.Request{Preferences: &sommelier.Preferences{WineType: "red"}})
	require.NoError(t, err)
	assert.False(t, rec.Fallback)
	assert.NotEmpty(t, rec.Wines)

	records, err := k.Queue().All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, sommelier.StageMCPAdapter, records[0].Stage())
	assert.True(t, records[0].Recoverable())
}

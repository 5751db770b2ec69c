package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/sommelier/observability"
	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
)

const chainSource = "workflows.ProcessChain"

// StepProcessor processes a single item and returns the updated accumulated state.
// Returning an error stops the chain.
type StepProcessor[TItem, TContext any] func(
	ctx context.Context,
	item TItem,
	state TContext,
) (TContext, error)

// ChainResult contains the results of chain execution.
//
// Final is the state after the last completed step, or the initial state when the
// chain fails before completing one. Intermediate is populated only when
// ChainConfig.CaptureIntermediateStates is set: index 0 is the initial state and
// index N the state after step N.
type ChainResult[TContext any] struct {
	Final        TContext
	Intermediate []TContext
	Steps        int
}

// ProcessChain runs processor over items in order, threading state from step to step.
//
// Processing is fail-fast: the first processor error, or a cancelled context observed
// before a step starts, ends the chain with a *ChainError. An empty items slice
// returns the initial state with zero steps.
func ProcessChain[TItem, TContext any](
	ctx context.Context,
	cfg config.ChainConfig,
	observer observability.Observer,
	items []TItem,
	initial TContext,
	processor StepProcessor[TItem, TContext],
	progress ProgressFunc[TContext],
) (ChainResult[TContext], error) {
	observer = observability.OrNoOp(observer)

	result := ChainResult[TContext]{
		Final: initial,
	}

	emit(ctx, observer, EventChainStart, observability.LevelVerbose, chainSource, map[string]any{
		"item_count":            len(items),
		"has_progress_callback": progress != nil,
		"capture_intermediate":  cfg.CaptureIntermediateStates,
	})

	var intermediate []TContext
	if cfg.CaptureIntermediateStates {
		intermediate = make([]TContext, 0, len(items)+1)
		intermediate = append(intermediate, initial)
	}

	state := initial

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			emit(ctx, observer, EventChainComplete, observability.LevelWarning, chainSource, map[string]any{
				"steps_completed": i,
				"error":           true,
				"error_type":      "cancellation",
			})
			result.Intermediate = intermediate
			result.Steps = i
			return result, &ChainError[TItem, TContext]{
				StepIndex: i,
				Item:      item,
				State:     state,
				Err:       fmt.Errorf("processing cancelled: %w", err),
			}
		}

		emit(ctx, observer, EventStepStart, observability.LevelVerbose, chainSource, map[string]any{
			"step_index":  i,
			"total_steps": len(items),
		})

		updated, err := processor(ctx, item, state)
		if err != nil {
			emit(ctx, observer, EventStepComplete, observability.LevelWarning, chainSource, map[string]any{
				"step_index":  i,
				"total_steps": len(items),
				"error":       true,
			})
			emit(ctx, observer, EventChainComplete, observability.LevelWarning, chainSource, map[string]any{
				"steps_completed": i,
				"error":           true,
				"error_type":      "processor",
			})
			result.Intermediate = intermediate
			result.Steps = i
			return result, &ChainError[TItem, TContext]{
				StepIndex: i,
				Item:      item,
				State:     state,
				Err:       err,
			}
		}

		state = updated
		result.Final = state

		if cfg.CaptureIntermediateStates {
			intermediate = append(intermediate, state)
		}

		emit(ctx, observer, EventStepComplete, observability.LevelVerbose, chainSource, map[string]any{
			"step_index":  i,
			"total_steps": len(items),
			"error":       false,
		})

		if progress != nil {
			progress(i+1, len(items), state)
		}
	}

	result.Intermediate = intermediate
	result.Steps = len(items)

	emit(ctx, observer, EventChainComplete, observability.LevelVerbose, chainSource, map[string]any{
		"steps_completed": len(items),
		"error":           false,
	})

	return result, nil
}

func emit(
	ctx context.Context,
	observer observability.Observer,
	eventType observability.EventType,
	level observability.Level,
	source string,
	data map[string]any,
) {
	observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}

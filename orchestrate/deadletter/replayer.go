package deadletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/adhocore/gronx"
)

// Replayer re-processes queued records on a cron schedule.
type Replayer struct {
	schedule  string
	queue     Queue
	processor *Processor
	logger    *slog.Logger
	now       func() time.Time
}

// NewReplayer validates schedule, a standard five-field cron expression.
func NewReplayer(schedule string, processor *Processor, logger *slog.Logger) (*Replayer, error) {
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid replay schedule %q", schedule)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Replayer{
		schedule:  schedule,
		queue:     processor.Queue(),
		processor: processor,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// ReplayOnce drains the queue and processes every record again. Records that fail
// again are re-appended by the processor.
func (r *Replayer) ReplayOnce(ctx context.Context) (int, error) {
	records, err := r.queue.Drain(ctx)
	if err != nil {
		return 0, fmt.Errorf("drain dead-letter queue: %w", err)
	}

	for _, record := range records {
		metadata := maps.Clone(record.Metadata)
		if metadata == nil {
			metadata = make(map[string]any)
		}
		metadata[MetaReplayedFrom] = record.ID
		metadata[MetaReplayCount] = record.replayCount() + 1

		r.processor.Process(ctx, record.Message, errors.New(record.Error), metadata)
	}

	if len(records) > 0 {
		r.logger.InfoContext(
			ctx,
			"dead letters replayed",
			slog.Int("count", len(records)),
		)
	}

	return len(records), nil
}

// Run replays at every tick of the schedule until ctx ends.
func (r *Replayer) Run(ctx context.Context) error {
	for {
		next, err := gronx.NextTickAfter(r.schedule, r.now(), false)
		if err != nil {
			return fmt.Errorf("next replay tick: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if _, err := r.ReplayOnce(ctx); err != nil {
			r.logger.ErrorContext(ctx, "dead-letter replay failed", slog.String("error", err.Error()))
		}
	}
}

package deadletter

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/sommelier/observability"
	"github.com/tailored-agentic-units/sommelier/orchestrate/retry"
)

const (
	EventRecorded    observability.EventType = "deadletter.recorded"
	EventRecovered   observability.EventType = "deadletter.recovered"
	EventStoreFailed observability.EventType = "deadletter.store_failed"
)

// Handler gets a chance to recover a failure before it is recorded.
type Handler interface {
	Handle(ctx context.Context, record Record) error
}

type HandlerFunc func(ctx context.Context, record Record) error

func (f HandlerFunc) Handle(ctx context.Context, record Record) error {
	return f(ctx, record)
}

type Processor struct {
	queue    Queue
	retry    *retry.Manager
	handlers []Handler

	logger   *slog.Logger
	observer observability.Observer
	recorded *prometheus.CounterVec
	now      func() time.Time
}

type Option func(*Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithObserver(observer observability.Observer) Option {
	return func(p *Processor) {
		p.observer = observability.OrNoOp(observer)
	}
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Processor) {
		p.recorded = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sommelier_dead_letters_total",
			Help: "Failures recorded in the dead-letter queue, by stage.",
		}, []string{"stage"})
	}
}

func NewProcessor(queue Queue, manager *retry.Manager, handlers []Handler, opts ...Option) *Processor {
	p := &Processor{
		queue:    queue,
		retry:    manager,
		handlers: handlers,
		logger:   slog.Default(),
		observer: observability.NoOpObserver{},
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Processor) Queue() Queue {
	return p.queue
}

// Record appends the failure to the queue without running handlers. Recovery is
// left to a later Process call, usually from the Replayer, so callers on a request
// path never wait on redelivery.
func (p *Processor) Record(ctx context.Context, message any, err error, metadata map[string]any) {
	p.store(ctx, newRecord(message, err, metadata), nil)
}

// Process runs every handler in parallel under the retry manager. When the manager
// gives up, the failure is appended to the queue. Process never fails; problems with
// the queue itself are logged.
func (p *Processor) Process(ctx context.Context, message any, err error, metadata map[string]any) {
	record := newRecord(message, err, metadata)

	_, runErr := p.retry.Execute(ctx, func(ctx context.Context) (any, error) {
		g, gCtx := errgroup.WithContext(ctx)
		for _, handler := range p.handlers {
			g.Go(func() error {
				return handler.Handle(gCtx, record)
			})
		}
		return nil, g.Wait()
	})

	if runErr == nil {
		p.logger.DebugContext(
			ctx,
			"dead letter handled",
			slog.String("record_id", record.ID),
			slog.String("stage", record.Stage()),
		)
		p.emit(ctx, EventRecovered, observability.LevelInfo, record, nil)
		return
	}

	p.store(ctx, record, runErr)
}

// store stamps the record and appends it to the queue. cause is the handler error
// that made the failure permanent, nil when the record skipped handling.
func (p *Processor) store(ctx context.Context, record Record, cause error) {
	record.Timestamp = p.now()

	if err := p.queue.Add(context.WithoutCancel(ctx), record); err != nil {
		p.logger.ErrorContext(
			ctx,
			"failed to store dead letter",
			slog.String("record_id", record.ID),
			slog.String("stage", record.Stage()),
			slog.String("error", err.Error()),
		)
		p.emit(ctx, EventStoreFailed, observability.LevelError, record, err)
		return
	}

	if p.recorded != nil {
		p.recorded.WithLabelValues(record.Stage()).Inc()
	}

	attrs := []any{
		slog.String("record_id", record.ID),
		slog.String("stage", record.Stage()),
		slog.String("error", record.Error),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("handler_error", cause.Error()))
	}
	p.logger.WarnContext(ctx, "dead letter recorded", attrs...)
	p.emit(ctx, EventRecorded, observability.LevelWarning, record, cause)
}

func (p *Processor) emit(ctx context.Context, eventType observability.EventType, level observability.Level, record Record, err error) {
	data := map[string]any{
		"record_id": record.ID,
		"stage":     record.Stage(),
		"error":     record.Error,
	}
	if err != nil {
		data["handler_error"] = err.Error()
	}

	p.observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: p.now(),
		Source:    "deadletter",
		Data:      data,
	})
}

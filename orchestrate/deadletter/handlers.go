package deadletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
)

// ErrNotRedeliverable marks records that carry no routable envelope.
var ErrNotRedeliverable = errors.New("dead letter is not redeliverable")

// LoggingHandler logs each failure. It never fails.
type LoggingHandler struct {
	Logger *slog.Logger
}

func (h LoggingHandler) Handle(ctx context.Context, record Record) error {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{
		slog.String("record_id", record.ID),
		slog.String("stage", record.Stage()),
		slog.String("error", record.Error),
	}
	if source, ok := record.Metadata[MetaSource].(string); ok {
		attrs = append(attrs, slog.String("source", source))
	}
	if correlationID, ok := record.Metadata[MetaCorrelationID].(string); ok {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	logger.LogAttrs(ctx, slog.LevelWarn, "processing dead letter", attrs...)
	return nil
}

// Redeliverer is the part of the bus RedeliveryHandler needs.
type Redeliverer interface {
	SendMessageAndWaitForResponse(
		ctx context.Context,
		targetAgentID string,
		message *messaging.Message,
		timeout time.Duration,
	) messaging.Result[*messaging.Message]
}

// RedeliveryHandler sends the record's envelope to its target again under a fresh
// correlation id. Only records flagged recoverable are redelivered. The response is
// discarded; only success or failure matters.
type RedeliveryHandler struct {
	Bus     Redeliverer
	Timeout time.Duration
}

func (h RedeliveryHandler) Handle(ctx context.Context, record Record) error {
	if !record.Recoverable() {
		return fmt.Errorf("%w: failure is not recoverable", ErrNotRedeliverable)
	}

	envelope, err := record.Envelope()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotRedeliverable, err)
	}
	if envelope.TargetAgent == "" || envelope.IsBroadcast() || envelope.IsError() {
		return fmt.Errorf("%w: envelope %s has no single target", ErrNotRedeliverable, envelope.ID)
	}

	redelivery := envelope.Clone()
	redelivery.CorrelationID = messaging.NewCorrelationID()
	redelivery.Metadata = maps.Clone(envelope.Metadata)
	if redelivery.Metadata == nil {
		redelivery.Metadata = make(map[string]any)
	}
	redelivery.Metadata["redeliveryOf"] = envelope.CorrelationID
	redelivery.Metadata["deadLetterId"] = record.ID

	_, err = h.Bus.SendMessageAndWaitForResponse(ctx, envelope.TargetAgent, redelivery, h.Timeout).Unpack()
	return err
}

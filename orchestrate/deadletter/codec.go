package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validTable guards table names interpolated into SQL.
func validTable(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid dead-letter table name %q", name)
	}
	return nil
}

func encodeFields(record Record) (message, metadata []byte, err error) {
	message, err = json.Marshal(record.Message)
	if err != nil {
		return nil, nil, fmt.Errorf("encode dead-letter message: %w", err)
	}

	metadata, err = json.Marshal(record.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("encode dead-letter metadata: %w", err)
	}
	return message, metadata, nil
}

func decodeFields(record *Record, message, metadata []byte) error {
	if err := json.Unmarshal(message, &record.Message); err != nil {
		return fmt.Errorf("decode dead-letter message %s: %w", record.ID, err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return fmt.Errorf("decode dead-letter metadata %s: %w", record.ID, err)
		}
	}
	return nil
}

// skipMalformed logs a stored record that no longer decodes. Sinks leave such
// entries in place, out of All and Drain, until Clear removes them.
func skipMalformed(ctx context.Context, sink, id string, err error) {
	slog.WarnContext(
		ctx,
		"skipping malformed dead letter",
		slog.String("sink", sink),
		slog.String("record_id", id),
		slog.String("error", err.Error()),
	)
}

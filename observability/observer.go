// Package observability carries structured events out of the bus, the resilience
// primitives, and the recommendation pipeline. Levels use OpenTelemetry severity
// numbers so events can be forwarded to a collector without translation.
package observability

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"
)

// Level is an OTel SeverityNumber.
type Level int

const (
	LevelVerbose Level = 5
	LevelInfo    Level = 9
	LevelWarning Level = 13
	LevelError   Level = 17
)

// severity bands, each covering levels up to and including upper.
var severities = []struct {
	upper Level
	text  string
	slog  slog.Level
}{
	{4, "TRACE", slog.LevelDebug},
	{8, "DEBUG", slog.LevelDebug},
	{12, "INFO", slog.LevelInfo},
	{16, "WARN", slog.LevelWarn},
	{20, "ERROR", slog.LevelError},
}

// String returns the OTel severity text.
func (l Level) String() string {
	for _, band := range severities {
		if l <= band.upper {
			return band.text
		}
	}
	return "FATAL"
}

func (l Level) SlogLevel() slog.Level {
	for _, band := range severities {
		if l <= band.upper {
			return band.slog
		}
	}
	return slog.LevelError
}

// EventType names an event, for example "bus.request.timeout" or "breaker.state".
type EventType string

// Event is one structured occurrence. Type, Level, Timestamp, Source, and Data
// correspond to the OTel LogRecord EventName, SeverityNumber, Timestamp,
// InstrumentationScope, and Attributes.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Attrs returns source followed by the Data entries in key order.
func (e Event) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(e.Data)+1)
	attrs = append(attrs, slog.String("source", e.Source))
	for _, k := range slices.Sorted(maps.Keys(e.Data)) {
		attrs = append(attrs, slog.Any(k, e.Data[k]))
	}
	return attrs
}

// Observer receives events. OnEvent must not block the emitting component.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

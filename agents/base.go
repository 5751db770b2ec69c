// Package agents implements the recommendation agents. Each agent declares its
// handler table once at construction and registers it, together with its directory
// record, on the bus it is given.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/tailored-agentic-units/sommelier/orchestrate/hub"
	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
)

// Agent is anything that can register itself on a bus.
type Agent interface {
	ID() string
	Register(bus *hub.Hub)
}

// Base holds an agent's identity and handler table.
type Base struct {
	id       string
	name     string
	handlers map[string]hub.Handler
	logger   *slog.Logger
	bus      *hub.Hub
}

func newBase(id, name string, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{
		id:       id,
		name:     name,
		handlers: make(map[string]hub.Handler),
		logger:   logger.With(slog.String("agent_id", id)),
	}
}

func (b *Base) ID() string {
	return b.id
}

// handle adds an entry to the handler table. Tables are complete before Register.
func (b *Base) handle(messageType string, handler hub.Handler) {
	b.handlers[messageType] = handler
}

// Register records the agent in the bus directory with its message types as
// capabilities and installs its handler table.
func (b *Base) Register(bus *hub.Hub) {
	b.bus = bus

	capabilities := slices.Sorted(maps.Keys(b.handlers))
	bus.RegisterAgent(b.id, hub.AgentInfo{
		Name:         b.name,
		Capabilities: capabilities,
	})

	for messageType, handler := range b.handlers {
		bus.RegisterMessageHandler(b.id, messageType, handler)
	}
}

// prompt sends through the bus LLM. Before Register it reports the LLM as not
// configured.
func (b *Base) prompt(ctx context.Context, prompt, correlationID string) (string, error) {
	if b.bus == nil {
		return "", messaging.NewAgentError(messaging.CodeLLMNotConfigured, "agent is not attached to a bus", b.id, correlationID)
	}
	return b.bus.SendLLMPrompt(ctx, prompt, correlationID).Unpack()
}

func (b *Base) reply(request *messaging.Message, messageType string, payload any) messaging.Result[*messaging.Message] {
	return messaging.Ok(messaging.NewResponse(request, b.id, messageType, payload).Build())
}

func (b *Base) fail(request *messaging.Message, code messaging.ErrorCode, format string, args ...any) messaging.Result[*messaging.Message] {
	return messaging.Fail[*messaging.Message](messaging.NewAgentError(
		code,
		fmt.Sprintf(format, args...),
		b.id,
		request.CorrelationID,
	))
}

// decode returns the request payload as T, or the MISSING_PAYLOAD or INVALID_PAYLOAD
// failure to answer with.
func decode[T any](b *Base, request *messaging.Message) (T, *messaging.AgentError) {
	if request.Payload == nil {
		var zero T
		return zero, messaging.NewAgentError(
			messaging.CodeMissingPayload,
			fmt.Sprintf("%s requires a payload", request.Type),
			b.id,
			request.CorrelationID,
		)
	}

	payload, err := messaging.DecodePayload[T](request)
	if err != nil {
		return payload, messaging.NewAgentError(
			messaging.CodeInvalidPayload,
			err.Error(),
			b.id,
			request.CorrelationID,
		).WithCause(err)
	}
	return payload, nil
}

// promptFunc adapts a prompt function to llm.Client.
type promptFunc func(ctx context.Context, prompt, correlationID string) (string, error)

func (f promptFunc) SendPrompt(ctx context.Context, prompt, correlationID string) (string, error) {
	return f(ctx, prompt, correlationID)
}

package hub

import (
	"context"
	"time"

	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
)

// Handler processes one message type for one agent. A nil envelope in the Ok arm
// signals that the message was handled and no reply is expected.
type Handler func(ctx context.Context, message *messaging.Message) messaging.Result[*messaging.Message]

// Subscriber receives published envelopes. Subscribers must not block for long; they
// run in the publisher's goroutine.
type Subscriber func(ctx context.Context, message *messaging.Message)

// Prompter is the narrow LLM contract the bus delegates SendLLMPrompt to.
type Prompter interface {
	SendPrompt(ctx context.Context, prompt, correlationID string) (string, error)
}

// AgentInfo is the directory record for a registered agent.
type AgentInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Capabilities []string  `json:"capabilities,omitempty"`
	LastSeen     time.Time `json:"lastSeen"`
}

// HasCapability reports whether the agent declared the given capability tag.
func (a AgentInfo) HasCapability(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// ContextEntry is a value stored in an agent's context memory.
type ContextEntry struct {
	Value     any            `json:"value"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

package messaging

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// TypeError is the sentinel message type for envelopes carrying an AgentError payload.
const TypeError = "ERROR"

// BroadcastTarget addresses every registered agent.
const BroadcastTarget = "*"

type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

// Message is the envelope routed by the bus. Payload is opaque to the bus and is
// interpreted by the receiving handler.
type Message struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Payload        any            `json:"payload"`
	SourceAgent    string         `json:"sourceAgent"`
	TargetAgent    string         `json:"targetAgent"`
	ConversationID string         `json:"conversationId"`
	CorrelationID  string         `json:"correlationId"`
	Timestamp      time.Time      `json:"timestamp"`
	Priority       Priority       `json:"priority"`
	UserID         string         `json:"userId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (msg *Message) IsError() bool {
	return msg.Type == TypeError
}

func (msg *Message) IsBroadcast() bool {
	return msg.TargetAgent == BroadcastTarget
}

// AgentError returns the AgentError carried by an ERROR envelope. Payloads that
// arrive in another shape are wrapped in a HANDLER_EXECUTION_ERROR.
func (msg *Message) AgentError() *AgentError {
	if !msg.IsError() {
		return nil
	}

	switch payload := msg.Payload.(type) {
	case *AgentError:
		return payload
	case AgentError:
		return &payload
	}

	decoded, err := DecodePayload[AgentError](msg)
	if err != nil || decoded.Code == "" {
		return NewAgentError(
			CodeHandlerExecution,
			fmt.Sprintf("malformed error payload: %v", msg.Payload),
			msg.SourceAgent,
			msg.CorrelationID,
		)
	}
	return &decoded
}

// Clone returns a shallow copy of the message with its own Metadata map.
func (msg *Message) Clone() *Message {
	clone := *msg
	clone.Metadata = maps.Clone(msg.Metadata)
	return &clone
}

func (msg *Message) String() string {
	return fmt.Sprintf(
		"Message{ID: %s, Type: %s, From: %s, To: %s, CorrelationID: %s}",
		msg.ID,
		msg.Type,
		msg.SourceAgent,
		msg.TargetAgent,
		msg.CorrelationID,
	)
}

// NewCorrelationID returns a fresh id suitable for pairing a request with its response.
func NewCorrelationID() string {
	return generateID()
}

func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}

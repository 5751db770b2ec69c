package messaging

import "time"

type MessageBuilder struct {
	message *Message
}

// New starts an envelope with a fresh id and timestamp and NORMAL priority.
// Payload shape is not validated here; that is the receiving handler's job.
func New(msgType string, payload any, source, conversationID, correlationID, target string) *MessageBuilder {
	return &MessageBuilder{
		message: &Message{
			ID:             generateID(),
			Type:           msgType,
			Payload:        payload,
			SourceAgent:    source,
			TargetAgent:    target,
			ConversationID: conversationID,
			CorrelationID:  correlationID,
			Timestamp:      time.Now(),
			Priority:       PriorityNormal,
		},
	}
}

// NewResponse addresses a reply to the request's source, preserving its
// correlation id, conversation id, and user id.
func NewResponse(request *Message, source, msgType string, payload any) *MessageBuilder {
	return New(
		msgType,
		payload,
		source,
		request.ConversationID,
		request.CorrelationID,
		request.SourceAgent,
	).UserID(request.UserID)
}

// NewErrorResponse builds the ERROR envelope the bus sends back to a request's source.
func NewErrorResponse(request *Message, source string, agentErr *AgentError) *MessageBuilder {
	return NewResponse(request, source, TypeError, agentErr)
}

func (mb *MessageBuilder) UserID(userID string) *MessageBuilder {
	mb.message.UserID = userID
	return mb
}

func (mb *MessageBuilder) Priority(priority Priority) *MessageBuilder {
	mb.message.Priority = priority
	return mb
}

func (mb *MessageBuilder) Metadata(metadata map[string]any) *MessageBuilder {
	mb.message.Metadata = metadata
	return mb
}

func (mb *MessageBuilder) Build() *Message {
	return mb.message
}

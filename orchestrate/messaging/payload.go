package messaging

import (
	"encoding/json"
	"fmt"
)

// DecodePayload returns the payload as T. Payloads already of type T (or *T) are
// returned directly; anything else is converted through its JSON form, which covers
// envelopes rebuilt from persisted dead-letter records.
func DecodePayload[T any](msg *Message) (T, error) {
	var out T

	switch payload := msg.Payload.(type) {
	case nil:
		return out, fmt.Errorf("message %s has no payload", msg.ID)
	case T:
		return payload, nil
	case *T:
		if payload == nil {
			return out, fmt.Errorf("message %s has no payload", msg.ID)
		}
		return *payload, nil
	}

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return out, fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

// FromRecord rebuilds an envelope from a value that may be a *Message, a Message, or
// its decoded JSON object form.
func FromRecord(value any) (*Message, error) {
	switch v := value.(type) {
	case *Message:
		if v == nil {
			return nil, fmt.Errorf("nil message")
		}
		return v, nil
	case Message:
		return &v, nil
	case nil:
		return nil, fmt.Errorf("nil message")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" || msg.TargetAgent == "" {
		return nil, fmt.Errorf("value is not a routable message")
	}
	return &msg, nil
}

// Package messaging provides the envelope primitives exchanged between agents on the bus.
//
// Every inter-agent exchange is carried in a Message envelope. The envelope holds an
// opaque payload plus the routing metadata the bus needs: a type tag selecting the
// receiving handler, the source and target agents, a conversation id grouping a
// multi-turn exchange, and a correlation id pairing a request with its response.
//
// # Message Construction
//
// Envelopes are built with a fluent builder that stamps a fresh UUIDv7 id and the
// creation time, and defaults the priority to NORMAL:
//
//	msg := messaging.New("RECOMMENDATION_REQUEST", payload, "coordinator", conversationID, correlationID, "recommendation-agent").
//	    UserID("user-42").
//	    Priority(messaging.PriorityHigh).
//	    Build()
//
// Responses copy the request's correlation and conversation ids and are addressed back
// to the request's source:
//
//	reply := messaging.NewResponse(msg, "recommendation-agent", "RECOMMENDATION_RESPONSE", result).Build()
//
// # Results and Errors
//
// Handlers return a Result, a tagged Ok/Err value whose error arm is an AgentError.
// AgentError carries a taxonomy code, the source agent, the correlation id, and a
// recoverable flag advising callers whether a retry makes sense. Failures that cross
// the bus travel as envelopes of the sentinel TypeError type whose payload is the
// AgentError.
//
// # Immutability
//
// Envelopes are treated as immutable once built. Components that need a variant (for
// example a redelivery with a new correlation id) work on a Clone.
package messaging

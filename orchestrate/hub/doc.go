// Package hub provides the in-process communication bus agents use to talk to each other.
//
// The bus has two layers. The base layer is an agent directory, topic-based
// publish/subscribe, a per-agent key/value context memory, and a gateway to an LLM
// client. The request/response layer adds a handler registry keyed by agent id and
// message type, a pending-response table keyed by correlation id, and routing that
// turns every handler outcome into either a response envelope or an ERROR envelope.
//
// # Handlers
//
// Agents register one handler per message type. A later registration for the same
// pair replaces the earlier one:
//
//	bus := hub.New(config.DefaultHubConfig(), hub.WithLogger(logger))
//	bus.RegisterMessageHandler("explanation", "GENERATE_EXPLANATION",
//	    func(ctx context.Context, msg *messaging.Message) messaging.Result[*messaging.Message] {
//	        reply := messaging.NewResponse(msg, "explanation", "EXPLANATION_RESULT", text).Build()
//	        return messaging.Ok(reply)
//	    })
//
// Returning Ok(nil) means the message was handled and no reply is expected. Returning
// Fail, or panicking, makes the bus send an ERROR envelope back to the sender.
//
// # Request/Response
//
//	result := bus.SendMessageAndWaitForResponse(ctx, "explanation", request, 5*time.Second)
//	reply, err := result.Unpack()
//
// Exactly one of success, failure, timeout, or caller cancellation resolves a request,
// and the pending entry is always removed before the call returns. Handlers are not
// interrupted by the timeout: a response that arrives late finds no pending entry and
// is routed to the original sender as a fresh inbound message. An ERROR envelope that
// nobody handles is logged and dropped.
//
// # Concurrency
//
// The bus is safe for concurrent use. The agent directory, handler registry,
// subscriptions, context memory, and pending table are each guarded by their own lock,
// and no lock is held while a handler or subscriber runs.
package hub

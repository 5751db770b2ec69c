package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tailored-agentic-units/sommelier/observability"
	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
)

// RegisterMessageHandler installs handler for messageType on agentID. A later
// registration for the same pair replaces the earlier one.
func (h *Hub) RegisterMessageHandler(agentID, messageType string, handler Handler) {
	h.handlersMutex.Lock()
	table, exists := h.handlers[agentID]
	if !exists {
		table = make(map[string]Handler)
		h.handlers[agentID] = table
	}
	_, replaced := table[messageType]
	table[messageType] = handler
	h.handlersMutex.Unlock()

	h.logger.Debug(
		"message handler registered",
		slog.String("hub_name", h.name),
		slog.String("agent_id", agentID),
		slog.String("message_type", messageType),
		slog.Bool("replaced", replaced),
	)
}

// HasHandler reports whether agentID has a handler for messageType.
func (h *Hub) HasHandler(agentID, messageType string) bool {
	h.handlersMutex.RLock()
	defer h.handlersMutex.RUnlock()

	_, exists := h.handlers[agentID][messageType]
	return exists
}

// SendMessageAndWaitForResponse routes message to targetAgentID and waits for the
// envelope carrying the same correlation id. A timeout of zero uses the bus default.
//
// The result is the response envelope, Ok(nil) when the handler returned no reply, the
// AgentError of an ERROR response, TIMEOUT_ERROR, or REQUEST_CANCELLED when ctx ends
// first. The pending entry is gone when this returns.
func (h *Hub) SendMessageAndWaitForResponse(
	ctx context.Context,
	targetAgentID string,
	message *messaging.Message,
	timeout time.Duration,
) messaging.Result[*messaging.Message] {
	if timeout <= 0 {
		timeout = h.defaultTimeout
	}

	if message.CorrelationID == "" {
		message = message.Clone()
		message.CorrelationID = messaging.NewCorrelationID()
	}
	correlationID := message.CorrelationID

	wait, ok := h.pending.register(correlationID)
	if !ok {
		return messaging.Fail[*messaging.Message](messaging.NewAgentError(
			messaging.CodeDuplicateCorrelationID,
			fmt.Sprintf("a request with correlation id %s is already pending", correlationID),
			h.name,
			correlationID,
		))
	}
	h.trackPending(1)
	defer h.trackPending(-1)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	go h.routeMessage(ctx, targetAgentID, message)

	select {
	case response := <-wait:
		return resolve(response)
	case <-timer.C:
		if _, took := h.pending.take(correlationID); !took {
			return resolve(<-wait)
		}

		h.metrics.RecordTimeout()
		h.collectors.timeouts.Inc()
		h.logger.WarnContext(
			ctx,
			"request timed out",
			slog.String("hub_name", h.name),
			slog.String("agent_id", targetAgentID),
			slog.String("correlation_id", correlationID),
			slog.String("message_type", message.Type),
			slog.Duration("timeout", timeout),
		)
		h.emit(ctx, EventRequestTimeout, observability.LevelWarning, message, targetAgentID, nil)

		return messaging.Fail[*messaging.Message](messaging.NewAgentError(
			messaging.CodeTimeout,
			fmt.Sprintf("no response from %s within %v", targetAgentID, timeout),
			h.name,
			correlationID,
		).WithRecoverable(true))
	case <-ctx.Done():
		if _, took := h.pending.take(correlationID); !took {
			return resolve(<-wait)
		}

		return messaging.Fail[*messaging.Message](messaging.NewAgentError(
			messaging.CodeRequestCancelled,
			fmt.Sprintf("request to %s cancelled: %v", targetAgentID, ctx.Err()),
			h.name,
			correlationID,
		).WithCause(ctx.Err()))
	}
}

func resolve(response *messaging.Message) messaging.Result[*messaging.Message] {
	if response == nil {
		return messaging.Ok[*messaging.Message](nil)
	}
	if response.IsError() {
		return messaging.Fail[*messaging.Message](response.AgentError())
	}
	return messaging.Ok(response)
}

func (h *Hub) trackPending(delta int) {
	h.metrics.RecordPending(delta)
	h.collectors.pending.Add(float64(delta))
}

// SendResponse delivers response to the caller waiting on its correlation id. With no
// caller waiting, the envelope is routed to targetAgentID as a fresh inbound message.
func (h *Hub) SendResponse(ctx context.Context, targetAgentID string, response *messaging.Message) {
	if ch, exists := h.pending.take(response.CorrelationID); exists {
		ch <- response
		return
	}

	h.routeMessage(ctx, targetAgentID, response)
}

// PublishToAgent routes message to targetAgentID without waiting for a reply. It runs
// in the caller's goroutine and returns once the handler and any reply routing finish.
func (h *Hub) PublishToAgent(ctx context.Context, targetAgentID string, message *messaging.Message) {
	h.routeMessage(ctx, targetAgentID, message)
}

// Broadcast routes message to every agent other than its source that has a handler for
// its type, then publishes it on the default topic. Handlers run concurrently and
// Broadcast returns after all of them finish, reporting how many agents were reached.
func (h *Hub) Broadcast(ctx context.Context, message *messaging.Message) int {
	h.handlersMutex.RLock()
	var recipients []string
	for agentID, table := range h.handlers {
		if agentID == message.SourceAgent {
			continue
		}
		if _, exists := table[message.Type]; exists {
			recipients = append(recipients, agentID)
		}
	}
	h.handlersMutex.RUnlock()

	var wg sync.WaitGroup
	for _, agentID := range recipients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.routeMessage(ctx, agentID, message)
		}()
	}
	wg.Wait()

	h.Publish(ctx, message, DefaultTopic)

	h.logger.DebugContext(
		ctx,
		"broadcast sent",
		slog.String("hub_name", h.name),
		slog.String("from", message.SourceAgent),
		slog.String("message_type", message.Type),
		slog.Int("recipients", len(recipients)),
	)

	return len(recipients)
}

func (h *Hub) lookupHandler(agentID string, message *messaging.Message) (Handler, *messaging.AgentError) {
	h.handlersMutex.RLock()
	defer h.handlersMutex.RUnlock()

	table, exists := h.handlers[agentID]
	if !exists {
		return nil, messaging.NewAgentError(
			messaging.CodeNoHandlerRegistered,
			fmt.Sprintf("no handlers registered for agent %s", agentID),
			h.name,
			message.CorrelationID,
		)
	}

	handler, exists := table[message.Type]
	if !exists {
		return nil, messaging.NewAgentError(
			messaging.CodeNoMessageTypeHandler,
			fmt.Sprintf("agent %s has no handler for message type %s", agentID, message.Type),
			agentID,
			message.CorrelationID,
		)
	}

	return handler, nil
}

// routeMessage never fails to its caller: every outcome becomes a response, an ERROR
// envelope sent back to the message source, or, for unhandled ERROR envelopes, a log line.
func (h *Hub) routeMessage(ctx context.Context, targetAgentID string, message *messaging.Message) {
	h.updateLastSeen(message.SourceAgent)
	h.metrics.RecordRouted()

	handler, agentErr := h.lookupHandler(targetAgentID, message)
	if agentErr != nil {
		if message.IsError() {
			h.collectors.routed.WithLabelValues(message.Type, outcomeDropped).Inc()
			h.logger.WarnContext(
				ctx,
				"dropping unhandled error message",
				slog.String("hub_name", h.name),
				slog.String("agent_id", targetAgentID),
				slog.String("correlation_id", message.CorrelationID),
				slog.String("error", message.AgentError().Error()),
			)
			h.emit(ctx, EventMessageDropped, observability.LevelWarning, message, targetAgentID, nil)
			return
		}

		h.collectors.routed.WithLabelValues(message.Type, outcomeNoHandler).Inc()
		h.logger.WarnContext(
			ctx,
			"no handler for message",
			slog.String("hub_name", h.name),
			slog.String("agent_id", targetAgentID),
			slog.String("message_type", message.Type),
			slog.String("code", string(agentErr.Code)),
		)
		h.emit(ctx, EventNoHandler, observability.LevelWarning, message, targetAgentID, agentErr)
		h.SendResponse(ctx, message.SourceAgent, messaging.NewErrorResponse(message, targetAgentID, agentErr).Build())
		return
	}

	result := h.invoke(ctx, targetAgentID, handler, message)
	if !result.IsOk() {
		agentErr := result.Failure()
		if agentErr.SourceAgent == "" || agentErr.CorrelationID == "" {
			agentErr = agentErr.Clone()
			if agentErr.SourceAgent == "" {
				agentErr.SourceAgent = targetAgentID
			}
			if agentErr.CorrelationID == "" {
				agentErr.CorrelationID = message.CorrelationID
			}
		}

		h.metrics.RecordHandlerFailure()
		h.collectors.routed.WithLabelValues(message.Type, outcomeFailed).Inc()
		h.logger.ErrorContext(
			ctx,
			"message handler failed",
			slog.String("hub_name", h.name),
			slog.String("agent_id", targetAgentID),
			slog.String("correlation_id", message.CorrelationID),
			slog.String("message_type", message.Type),
			slog.String("error", agentErr.Error()),
		)
		h.emit(ctx, EventHandlerFailed, observability.LevelError, message, targetAgentID, agentErr)
		h.SendResponse(ctx, message.SourceAgent, messaging.NewErrorResponse(message, targetAgentID, agentErr).Build())
		return
	}

	h.collectors.routed.WithLabelValues(message.Type, outcomeOK).Inc()
	h.emit(ctx, EventMessageRouted, observability.LevelVerbose, message, targetAgentID, nil)

	response := result.Data()
	if response == nil {
		if ch, exists := h.pending.take(message.CorrelationID); exists {
			ch <- nil
		}
		return
	}

	if response.CorrelationID == "" {
		response.CorrelationID = message.CorrelationID
	}
	if response.TargetAgent == "" {
		response.TargetAgent = message.SourceAgent
	}
	h.SendResponse(ctx, message.SourceAgent, response)
}

func (h *Hub) invoke(
	ctx context.Context,
	agentID string,
	handler Handler,
	message *messaging.Message,
) (result messaging.Result[*messaging.Message]) {
	defer func() {
		if r := recover(); r != nil {
			result = messaging.Fail[*messaging.Message](messaging.NewAgentError(
				messaging.CodeHandlerExecution,
				fmt.Sprintf("handler for %s panicked: %v", message.Type, r),
				agentID,
				message.CorrelationID,
			))
		}
	}()

	return handler(ctx, message)
}

func (h *Hub) emit(
	ctx context.Context,
	eventType observability.EventType,
	level observability.Level,
	message *messaging.Message,
	agentID string,
	agentErr *messaging.AgentError,
) {
	data := map[string]any{
		"agent_id":       agentID,
		"message_type":   message.Type,
		"correlation_id": message.CorrelationID,
		"source_agent":   message.SourceAgent,
	}
	if agentErr != nil {
		data["code"] = string(agentErr.Code)
		data["error"] = agentErr.Message
	}

	h.observer.OnEvent(ctx, observability.Event{
		Type:      eventType,
		Level:     level,
		Timestamp: time.Now(),
		Source:    h.name,
		Data:      data,
	})
}

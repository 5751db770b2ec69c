package messaging

import (
	"errors"
	"fmt"
	"maps"
)

// ErrorCode tags an AgentError with its place in the failure taxonomy.
type ErrorCode string

const (
	CodeTimeout                ErrorCode = "TIMEOUT_ERROR"
	CodeRequestCancelled       ErrorCode = "REQUEST_CANCELLED"
	CodeDuplicateCorrelationID ErrorCode = "DUPLICATE_CORRELATION_ID"
	CodeNoHandlerRegistered    ErrorCode = "NO_HANDLER_REGISTERED"
	CodeNoMessageTypeHandler   ErrorCode = "NO_MESSAGE_TYPE_HANDLER"
	CodeHandlerExecution       ErrorCode = "HANDLER_EXECUTION_ERROR"
	CodeUnhandledMessageType   ErrorCode = "UNHANDLED_MESSAGE_TYPE"
	CodeCircuitOpen            ErrorCode = "CIRCUIT_OPEN"

	CodeLLMNotConfigured ErrorCode = "LLM_SERVICE_NOT_CONFIGURED"
	CodeLLMService       ErrorCode = "LLM_SERVICE_ERROR"
	CodeGraphQuery       ErrorCode = "NEO4J_QUERY_FAILED"
	CodeGraphConnection  ErrorCode = "NEO4J_CONNECTION_FAILED"
	CodeMCPService       ErrorCode = "MCP_SERVICE_ERROR"

	CodeMissingPayload ErrorCode = "MISSING_PAYLOAD"
	CodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"

	CodeRequestTypeUndetermined ErrorCode = "REQUEST_TYPE_UNDETERMINED"
	CodeRecommendationFailed    ErrorCode = "RECOMMENDATION_FAILED"
)

// AgentError is the error arm of every handler Result. Recoverable advises callers
// whether retrying the same request may succeed.
type AgentError struct {
	Message       string         `json:"message"`
	Code          ErrorCode      `json:"code"`
	SourceAgent   string         `json:"sourceAgent"`
	CorrelationID string         `json:"correlationId"`
	Recoverable   bool           `json:"recoverable"`
	Details       map[string]any `json:"details,omitempty"`

	cause error
}

// NewAgentError creates a non-recoverable AgentError.
func NewAgentError(code ErrorCode, message, source, correlationID string) *AgentError {
	return &AgentError{
		Message:       message,
		Code:          code,
		SourceAgent:   source,
		CorrelationID: correlationID,
	}
}

// WrapError converts err into an AgentError. An AgentError already present in the
// chain is returned unchanged.
func WrapError(err error, code ErrorCode, source, correlationID string) *AgentError {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr
	}
	return &AgentError{
		Message:       err.Error(),
		Code:          code,
		SourceAgent:   source,
		CorrelationID: correlationID,
		cause:         err,
	}
}

// Clone returns a copy that can be annotated without touching e. The cause is shared.
func (e *AgentError) Clone() *AgentError {
	clone := *e
	clone.Details = maps.Clone(e.Details)
	return &clone
}

func (e *AgentError) WithRecoverable(recoverable bool) *AgentError {
	e.Recoverable = recoverable
	return e
}

func (e *AgentError) WithDetails(details map[string]any) *AgentError {
	e.Details = details
	return e
}

func (e *AgentError) WithCause(cause error) *AgentError {
	e.cause = cause
	return e
}

func (e *AgentError) Error() string {
	if e.SourceAgent == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.SourceAgent, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.cause
}

// Is matches any AgentError target carrying the same code.
func (e *AgentError) Is(target error) bool {
	t, ok := target.(*AgentError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HasCode reports whether err carries an AgentError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var agentErr *AgentError
	if !errors.As(err, &agentErr) {
		return false
	}
	return agentErr.Code == code
}

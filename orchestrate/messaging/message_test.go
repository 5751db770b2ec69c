package messaging_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
)

func TestNew_Defaults(t *testing.T) {
	msg := messaging.New("PING", "data", "agent-a", "conv-1", "corr-1", "agent-b").Build()

	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
	assert.Equal(t, messaging.PriorityNormal, msg.Priority)
	assert.Equal(t, "PING", msg.Type)
	assert.Equal(t, "agent-a", msg.SourceAgent)
	assert.Equal(t, "agent-b", msg.TargetAgent)
	assert.Equal(t, "conv-1", msg.ConversationID)
	assert.Equal(t, "corr-1", msg.CorrelationID)
	assert.Empty(t, msg.UserID)
}

func TestNew_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		msg := messaging.New("PING", nil, "a", "c", "r", "b").Build()
		require.False(t, seen[msg.ID], "duplicate id %s", msg.ID)
		seen[msg.ID] = true
	}
}

func TestBuilder_Options(t *testing.T) {
	msg := messaging.New("PING", nil, "a", "c", "r", "b").
		UserID("user-1").
		Priority(messaging.PriorityHigh).
		Metadata(map[string]any{"trace": "x"}).
		Build()

	assert.Equal(t, "user-1", msg.UserID)
	assert.Equal(t, messaging.PriorityHigh, msg.Priority)
	assert.Equal(t, "x", msg.Metadata["trace"])
}

func TestNewResponse_PreservesCorrelation(t *testing.T) {
	req := messaging.New("ASK", "q", "caller", "conv-9", "corr-9", "callee").UserID("u").Build()
	resp := messaging.NewResponse(req, "callee", "ANSWER", "a").Build()

	assert.Equal(t, req.CorrelationID, resp.CorrelationID)
	assert.Equal(t, req.ConversationID, resp.ConversationID)
	assert.Equal(t, "caller", resp.TargetAgent)
	assert.Equal(t, "callee", resp.SourceAgent)
	assert.Equal(t, "u", resp.UserID)
	assert.NotEqual(t, req.ID, resp.ID)
}

func TestNewErrorResponse(t *testing.T) {
	req := messaging.New("ASK", "q", "caller", "conv", "corr", "callee").Build()
	agentErr := messaging.NewAgentError(messaging.CodeInvalidPayload, "bad", "callee", "corr")
	resp := messaging.NewErrorResponse(req, "callee", agentErr).Build()

	assert.True(t, resp.IsError())
	assert.Same(t, agentErr, resp.AgentError())
}

func TestMessage_AgentError_FromDecodedPayload(t *testing.T) {
	payload := map[string]any{
		"message":     "boom",
		"code":        "HANDLER_EXECUTION_ERROR",
		"sourceAgent": "x",
		"recoverable": true,
	}
	msg := messaging.New(messaging.TypeError, payload, "x", "c", "r", "y").Build()

	agentErr := msg.AgentError()
	require.NotNil(t, agentErr)
	assert.Equal(t, messaging.CodeHandlerExecution, agentErr.Code)
	assert.True(t, agentErr.Recoverable)
	assert.Equal(t, "boom", agentErr.Message)
}

func TestMessage_AgentError_NotErrorType(t *testing.T) {
	msg := messaging.New("PING", nil, "a", "c", "r", "b").Build()
	assert.Nil(t, msg.AgentError())
}

func TestMessage_Clone(t *testing.T) {
	msg := messaging.New("PING", nil, "a", "c", "r", "b").
		Metadata(map[string]any{"k": "v"}).
		Build()

	clone := msg.Clone()
	clone.Metadata["k"] = "changed"
	clone.CorrelationID = "other"

	assert.Equal(t, "v", msg.Metadata["k"])
	assert.Equal(t, "r", msg.CorrelationID)
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	msg := messaging.New("PING", map[string]any{"n": 1.0}, "a", "c", "r", "b").Build()

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	rebuilt, err := messaging.FromRecord(decoded)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, rebuilt.ID)
	assert.Equal(t, msg.CorrelationID, rebuilt.CorrelationID)
	assert.Equal(t, msg.TargetAgent, rebuilt.TargetAgent)
}

func TestFromRecord_Rejects(t *testing.T) {
	_, err := messaging.FromRecord(nil)
	assert.Error(t, err)

	_, err = messaging.FromRecord(map[string]any{"foo": "bar"})
	assert.Error(t, err)
}

type wineQuery struct {
	WineType string `json:"wineType"`
}

func TestDecodePayload(t *testing.T) {
	direct := messaging.New("Q", wineQuery{WineType: "red"}, "a", "c", "r", "b").Build()
	got, err := messaging.DecodePayload[wineQuery](direct)
	require.NoError(t, err)
	assert.Equal(t, "red", got.WineType)

	pointer := messaging.New("Q", &wineQuery{WineType: "white"}, "a", "c", "r", "b").Build()
	got, err = messaging.DecodePayload[wineQuery](pointer)
	require.NoError(t, err)
	assert.Equal(t, "white", got.WineType)

	generic := messaging.New("Q", map[string]any{"wineType": "rose"}, "a", "c", "r", "b").Build()
	got, err = messaging.DecodePayload[wineQuery](generic)
	require.NoError(t, err)
	assert.Equal(t, "rose", got.WineType)

	empty := messaging.New("Q", nil, "a", "c", "r", "b").Build()
	_, err = messaging.DecodePayload[wineQuery](empty)
	assert.Error(t, err)
}

package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/sommelier/llm"
)

type scriptedClient struct {
	replies []string
	errs    []error
	prompts []string
}

func (c *scriptedClient) SendPrompt(ctx context.Context, prompt, correlationID string) (string, error) {
	i := len(c.prompts)
	c.prompts = append(c.prompts, prompt)

	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return c.replies[len(c.replies)-1], nil
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"prose around", `Sure! Here it is: {"a":[1,2]} hope that helps`, `{"a":[1,2]}`},
		{"markdown fence", "```json\n[{\"id\":\"w1\"}]\n```", `[{"id":"w1"}]`},
		{"skips broken brace", `{ not json } then {"ok":true}`, `{"ok":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := llm.ExtractJSON(tt.text)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestExtractJSON_None(t *testing.T) {
	_, err := llm.ExtractJSON("no structured content here")
	assert.ErrorIs(t, err, llm.ErrNoJSON)
}

func TestSendStructured(t *testing.T) {
	type pick struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	}

	client := &scriptedClient{replies: []string{`Recommended: {"name":"Barolo","price":45}`}}

	got, err := llm.SendStructured[pick](context.Background(), client, "pick a wine", "corr-1")
	require.NoError(t, err)
	assert.Equal(t, pick{Name: "Barolo", Price: 45}, got)
	assert.Equal(t, []string{"pick a wine"}, client.prompts)
}

func TestSendStructured_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := llm.SendStructured[map[string]any](ctx, nil, "p", "c")
	assert.ErrorIs(t, err, llm.ErrNotConfigured)

	boom := errors.New("boom")
	_, err = llm.SendStructured[map[string]any](ctx, &scriptedClient{errs: []error{boom}}, "p", "c")
	assert.ErrorIs(t, err, boom)

	_, err = llm.SendStructured[map[string]any](ctx, &scriptedClient{replies: []string{"plain text"}}, "p", "c")
	assert.ErrorIs(t, err, llm.ErrNoJSON)

	_, err = llm.SendStructured[[]string](ctx, &scriptedClient{replies: []string{`{"a":1}`}}, "p", "c")
	assert.Error(t, err)
}

package llms_test

import (
	"testing"

	"github.com/effective-security/mcpconverse/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextParts(t *testing.T) {
	t.Parallel()
	type args struct {
		role  llms.Role
		parts []string
	}
	tests := []struct {
		name string
		args args
		want llms.Message
	}{
		{
			"basics",
			args{
				llms.RoleHuman,
				[]string{"a", "b", "c"},
			},
			llms.Message{
				Role:  llms.RoleHuman,
				Parts: []llms.ContentPart{llms.TextPart("a"), llms.TextPart("b"), llms.TextPart("c")},
			},
		},
		{
			"empty",
			args{
				llms.RoleAI,
				nil,
			},
			llms.Message{
				Role:  llms.RoleAI,
				Parts: []llms.ContentPart{},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mc := llms.MessageFromTextParts(tt.args.role, tt.args.parts...)
			assert.Equal(t, tt.want, mc)
		})
	}
}

func TestMessage_GetContent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		msg     llms.Message
		content string
	}{
		{
			"text",
			llms.MessageFromTextParts(llms.RoleHuman, "a", "b"),
			"a\nb\n",
		},
		{
			"tool call",
			llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
				ID:   "t1",
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      "get_dividends",
					Arguments: `{"symbol":"AAPL"}`,
				},
			}),
			"Tool Call: {\"id\":\"t1\",\"type\":\"function\",\"function\":{\"name\":\"get_dividends\",\"arguments\":\"{\\\"symbol\\\":\\\"AAPL\\\"}\"}}\n",
		},
		{
			"tool response",
			llms.MessageFromToolResponse(llms.RoleHuman, llms.ToolCallResponse{
				ToolCallID: "t1",
				Name:       "get_dividends",
				Content:    `{"amount":0.24}`,
			}),
			"Response: {\"tool_call_id\":\"t1\",\"name\":\"get_dividends\",\"content\":\"{\\\"amount\\\":0.24}\"}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.content, tt.msg.GetContent())
		})
	}
}

func TestContentChoice_Message(t *testing.T) {
	tc := llms.ToolCall{
		ID:           "t1",
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: "get_dividends", Arguments: `{"symbol":"AAPL"}`},
	}
	choice := &llms.ContentChoice{
		Content:    "let me check",
		StopReason: llms.StopReasonToolUse,
		ToolCalls:  []llms.ToolCall{tc},
	}
	m := choice.Message()
	assert.Equal(t, llms.RoleAI, m.Role)
	require.Len(t, m.Parts, 2)
	assert.Equal(t, llms.TextPart("let me check"), m.Parts[0])
	assert.Equal(t, tc, m.Parts[1])

	empty := (&llms.ContentChoice{ToolCalls: []llms.ToolCall{tc}}).Message()
	require.Len(t, empty.Parts, 1)
	assert.Equal(t, tc, empty.Parts[0])

	blocks := (&llms.ContentChoice{
		Content:    "first\nsecond",
		TextBlocks: []string{"first", "second"},
		ToolCalls:  []llms.ToolCall{tc},
	}).Message()
	require.Len(t, blocks.Parts, 3)
	assert.Equal(t, llms.TextPart("first"), blocks.Parts[0])
	assert.Equal(t, llms.TextPart("second"), blocks.Parts[1])
	assert.Equal(t, tc, blocks.Parts[2])
	assert.Equal(t, "ToolCall: t1 (get_dividends), input: {\"symbol\":\"AAPL\"}", tc.String())
}

func TestContentChoice_FirstText(t *testing.T) {
	tcases := []struct {
		name   string
		choice llms.ContentChoice
		exp    string
		found  bool
	}{
		{
			name: "blocks",
			choice: llms.ContentChoice{
				Content:    "Apple paid a dividend of $0.24 per share.\nAnything else?",
				TextBlocks: []string{"Apple paid a dividend of $0.24 per share.", "Anything else?"},
			},
			exp:   "Apple paid a dividend of $0.24 per share.",
			found: true,
		},
		{
			name: "blank first block",
			choice: llms.ContentChoice{
				TextBlocks: []string{" ", "Anything else?"},
			},
			exp:   "Anything else?",
			found: true,
		},
		{
			name:   "content only",
			choice: llms.ContentChoice{Content: "hello"},
			exp:    "hello",
			found:  true,
		},
		{
			name:   "empty",
			choice: llms.ContentChoice{},
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			text, ok := tc.choice.FirstText()
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.exp, text)
		})
	}
}

func TestMessageFromToolCalls_NoFunction(t *testing.T) {
	m := llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{ID: "t1", Type: "function"})
	require.Len(t, m.Parts, 1)
	assert.Equal(t, llms.ToolCall{ID: "t1", Type: "function"}, m.Parts[0])
}

func TestFunctionCall_ArgumentsMap(t *testing.T) {
	fc := &llms.FunctionCall{Name: "get_dividends", Arguments: `{"symbol":"AAPL"}`}
	args, err := fc.ArgumentsMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"symbol": "AAPL"}, args)

	fc.Arguments = "  "
	args, err = fc.ArgumentsMap()
	require.NoError(t, err)
	assert.Empty(t, args)

	fc.Arguments = "{not json"
	_, err = fc.ArgumentsMap()
	assert.ErrorContains(t, err, "invalid arguments for get_dividends")
}

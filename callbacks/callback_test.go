package callbacks_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/effective-security/mcpconverse/callbacks"
	"github.com/effective-security/mcpconverse/mocks/mockllms"
	"github.com/effective-security/mcpconverse/pkg/llms"
	"github.com/effective-security/mcpconverse/tools"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpconverse", "callbacks_test")

func toolCall() llms.ToolCall {
	return llms.ToolCall{
		ID:   "tooluse_1",
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      "get_dividends",
			Arguments: `{"symbol":"AAPL"}`,
		},
	}
}

func initialChoice() *llms.ContentChoice {
	return &llms.ContentChoice{
		Content:    "Let me look that up.",
		StopReason: llms.StopReasonToolUse,
		ToolCalls:  []llms.ToolCall{toolCall()},
		GenerationInfo: map[string]any{
			"input_tokens":  100,
			"output_tokens": 20,
			"total_tokens":  120,
		},
	}
}

// emit sends a full successful conversation to the handler
func emit(ctx context.Context, h callbacks.Handler, model llms.Model) {
	msgs := []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "Give me dividend information for Apple stock")}
	choice := initialChoice()

	h.OnConversationStart(ctx, "c1", "Give me dividend information for Apple stock")
	h.OnLLMCallStart(ctx, model, msgs)
	h.OnLLMCallEnd(ctx, model, &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}})
	h.OnInitialResponse(ctx, choice)
	h.OnToolStart(ctx, toolCall())
	h.OnToolEnd(ctx, toolCall(), tools.OK(map[string]any{"amount": 0.24}))
	h.OnFinalResponse(ctx, "Apple paid a dividend of $0.24 per share.")
	h.OnConversationEnd(ctx, "c1", "Done")
}

func newModel(t *testing.T) llms.Model {
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("us.amazon.nova-lite-v1:0").AnyTimes()
	return m
}

func TestPrinter(t *testing.T) {
	ctx := context.Background()
	model := newModel(t)

	var buf bytes.Buffer
	emit(ctx, callbacks.NewPrinter(&buf, callbacks.ModeDefault), model)

	exp := `-----------------
User Message: Give me dividend information for Apple stock

[Initial Response]
Stop Reason: tool_use
Content: {
  "role": "assistant",
  "content": [
    {
      "text": "Let me look that up."
    },
    {
      "toolUse": {
        "toolUseId": "tooluse_1",
        "name": "get_dividends",
        "input": {
          "symbol": "AAPL"
        }
      }
    }
  ]
}

Tool Name: get_dividends
Tool Input: {"symbol":"AAPL"}

Response: Apple paid a dividend of $0.24 per share.
`
	assert.Equal(t, exp, buf.String())

	buf.Reset()
	emit(ctx, callbacks.NewPrinter(&buf, callbacks.ModeVerbose), model)
	res := buf.String()
	assert.Contains(t, res, "Conversation: c1\n")
	assert.Contains(t, res, "LLM Call: us.amazon.nova-lite-v1:0 model, 1 messages\nHuman: Give me dividend information for Apple stock\n")
	assert.Contains(t, res, "LLM Call End: us.amazon.nova-lite-v1:0 model, 1 choices\n")
	assert.Contains(t, res, "Tool Result: {\"amount\":0.24}\n")
	assert.Contains(t, res, "Conversation End: c1: Done\n")

	buf.Reset()
	p := callbacks.NewPrinter(&buf, callbacks.ModeDefault)
	p.OnToolNotCalled(ctx, "The dividends information tool was not called")
	p.OnConversationError(ctx, "c1", errors.New("connection refused"))
	assert.Equal(t, "The dividends information tool was not called\nConversation Error: connection refused\n", buf.String())
}

func TestAssistantMessage(t *testing.T) {
	m := callbacks.AssistantMessage(&llms.ContentChoice{})
	assert.Equal(t, "assistant", m.Role)
	assert.Empty(t, m.Content)

	m = callbacks.AssistantMessage(&llms.ContentChoice{
		ToolCalls: []llms.ToolCall{
			{ID: "1", FunctionCall: &llms.FunctionCall{Name: "get_dividends", Arguments: "not json"}},
			{ID: "2"},
		},
	})
	if assert.Len(t, m.Content, 1) {
		assert.Equal(t, `"not json"`, string(m.Content[0].ToolUse.Input))
	}

	m = callbacks.AssistantMessage(&llms.ContentChoice{
		Content:    "Let me check.\nOne moment.",
		TextBlocks: []string{"Let me check.", "One moment."},
	})
	assert.Equal(t, []callbacks.ContentBlockJSON{{Text: "Let me check."}, {Text: "One moment."}}, m.Content)
}

func TestFanout(t *testing.T) {
	ctx := context.Background()
	model := newModel(t)

	var buf bytes.Buffer
	stats := callbacks.NewStats()
	fan := callbacks.NewFanout(callbacks.NewPrinter(&buf, callbacks.ModeDefault), callbacks.NewNoop())
	fan.Add(stats)
	fan.Add(callbacks.NewPackageLogger(logger))

	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	callbacks.TimeNowFn = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	defer func() { callbacks.TimeNowFn = time.Now }()

	emit(ctx, fan, model)
	fan.OnToolNotCalled(ctx, "notice")
	fan.OnToolEnd(ctx, toolCall(), tools.Fail("boom"))

	assert.Contains(t, buf.String(), "Response: Apple paid a dividend of $0.24 per share.")

	s := stats.Get()
	assert.Equal(t, "c1", s.ConversationID)
	assert.Equal(t, "Done", s.State)
	assert.Equal(t, time.Second, s.Duration)
	assert.Equal(t, uint32(1), s.LLMCalls)
	assert.Equal(t, uint32(1), s.LLMMessagesSent)
	assert.NotZero(t, s.LLMBytesOut)
	assert.NotZero(t, s.LLMBytesIn)
	assert.Equal(t, uint64(100), s.LLMInputTokens)
	assert.Equal(t, uint64(20), s.LLMOutputTokens)
	assert.Equal(t, uint64(120), s.LLMTotalTokens)
	assert.Equal(t, uint32(1), s.ToolCalls)
	assert.Equal(t, uint32(1), s.ToolCallsFailed)
	assert.Equal(t, uint32(1), s.ToolNotCalled)

	fan.OnConversationError(ctx, "c1", errors.New("throttled"))
	assert.Equal(t, "throttled", stats.Get().ConversationError)
}

package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/mcpconverse/pkg/llms"
	"github.com/effective-security/mcpconverse/pkg/llmutils"
	"github.com/effective-security/mcpconverse/tools"
	"github.com/effective-security/xlog"
)

// Handler receives the events of a conversation run.
type Handler interface {
	OnConversationStart(ctx context.Context, conversationID, userMessage string)
	OnConversationEnd(ctx context.Context, conversationID, state string)
	OnConversationError(ctx context.Context, conversationID string, err error)
	OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message)
	OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse)
	OnInitialResponse(ctx context.Context, choice *llms.ContentChoice)
	OnToolStart(ctx context.Context, call llms.ToolCall)
	OnToolEnd(ctx context.Context, call llms.ToolCall, result tools.Result)
	OnToolNotCalled(ctx context.Context, notice string)
	OnFinalResponse(ctx context.Context, answer string)
}

// ensure that the callbacks implement the correct interfaces
var (
	_ Handler = (*Noop)(nil)
	_ Handler = (*Printer)(nil)
	_ Handler = (*PackageLogger)(nil)
	_ Handler = (*Fanout)(nil)
	_ Handler = (*Stats)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []Handler
}

func NewFanout(callbacks ...Handler) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback Handler) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnConversationStart(ctx context.Context, conversationID, userMessage string) {
	for _, callback := range l.callbacks {
		callback.OnConversationStart(ctx, conversationID, userMessage)
	}
}

func (l *Fanout) OnConversationEnd(ctx context.Context, conversationID, state string) {
	for _, callback := range l.callbacks {
		callback.OnConversationEnd(ctx, conversationID, state)
	}
}

func (l *Fanout) OnConversationError(ctx context.Context, conversationID string, err error) {
	for _, callback := range l.callbacks {
		callback.OnConversationError(ctx, conversationID, err)
	}
}

func (l *Fanout) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallStart(ctx, llm, messages)
	}
}

func (l *Fanout) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	for _, callback := range l.callbacks {
		callback.OnLLMCallEnd(ctx, llm, resp)
	}
}

func (l *Fanout) OnInitialResponse(ctx context.Context, choice *llms.ContentChoice) {
	for _, callback := range l.callbacks {
		callback.OnInitialResponse(ctx, choice)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, call llms.ToolCall) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, call)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, call llms.ToolCall, result tools.Result) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, call, result)
	}
}

func (l *Fanout) OnToolNotCalled(ctx context.Context, notice string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotCalled(ctx, notice)
	}
}

func (l *Fanout) OnFinalResponse(ctx context.Context, answer string) {
	for _, callback := range l.callbacks {
		callback.OnFinalResponse(ctx, answer)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnConversationStart(ctx context.Context, conversationID, userMessage string) {}
func (l *Noop) OnConversationEnd(ctx context.Context, conversationID, state string) {}
func (l *Noop) OnConversationError(ctx context.Context, conversationID string, err error) {}
func (l *Noop) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
}
func (l *Noop) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
}
func (l *Noop) OnInitialResponse(ctx context.Context, choice *llms.ContentChoice) {}
func (l *Noop) OnToolStart(ctx context.Context, call llms.ToolCall) {}
func (l *Noop) OnToolEnd(ctx context.Context, call llms.ToolCall, result tools.Result) {}
func (l *Noop) OnToolNotCalled(ctx context.Context, notice string) {}
func (l *Noop) OnFinalResponse(ctx context.Context, answer string) {}

// Printer is a callback handler that prints the conversation transcript to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnConversationStart(ctx context.Context, conversationID, userMessage string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintln(l.Out, "-----------------")
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Conversation: %s\n", conversationID)
	}
	fmt.Fprintf(l.Out, "User Message: %s\n", userMessage)
}

func (l *Printer) OnConversationEnd(ctx context.Context, conversationID, state string) {
	if l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Conversation End: %s: %s\n", conversationID, state)
}

func (l *Printer) OnConversationError(ctx context.Context, conversationID string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Conversation Error: %s\n", err.Error())
}

func (l *Printer) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
	if l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call: %s model, %d messages\n", llm.GetName(), len(messages))
	llmutils.PrintMessages(l.Out, messages)
}

func (l *Printer) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	if l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "LLM Call End: %s model, %d choices\n", llm.GetName(), len(resp.Choices))
}

func (l *Printer) OnInitialResponse(ctx context.Context, choice *llms.ContentChoice) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintln(l.Out, "\n[Initial Response]")
	fmt.Fprintf(l.Out, "Stop Reason: %s\n", choice.StopReason)
	fmt.Fprintf(l.Out, "Content: %s\n", llmutils.ToJSONIndent(AssistantMessage(choice)))
}

func (l *Printer) OnToolStart(ctx context.Context, call llms.ToolCall) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "\nTool Name: %s\n", call.FunctionCall.Name)
	fmt.Fprintf(l.Out, "Tool Input: %s\n", call.FunctionCall.Arguments)
}

func (l *Printer) OnToolEnd(ctx context.Context, call llms.ToolCall, result tools.Result) {
	if l.Mode != ModeVerbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Result: %s\n", result.JSON())
}

func (l *Printer) OnToolNotCalled(ctx context.Context, notice string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintln(l.Out, notice)
}

func (l *Printer) OnFinalResponse(ctx context.Context, answer string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "\nResponse: %s\n", answer)
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnConversationStart(ctx context.Context, conversationID, userMessage string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "conversation_start",
		"conversation", conversationID,
		"input", userMessage,
	)
}

func (l *PackageLogger) OnConversationEnd(ctx context.Context, conversationID, state string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "conversation_end",
		"conversation", conversationID,
		"state", state,
	)
}

func (l *PackageLogger) OnConversationError(ctx context.Context, conversationID string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "conversation_error",
		"conversation", conversationID,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_start",
		"model", llm.GetName(),
		"messages", len(messages),
	)
}

func (l *PackageLogger) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "llm_call_end",
		"model", llm.GetName(),
		"choices", len(resp.Choices),
	)
}

func (l *PackageLogger) OnInitialResponse(ctx context.Context, choice *llms.ContentChoice) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "initial_response",
		"stop_reason", choice.StopReason,
		"content", llmutils.ToJSON(AssistantMessage(choice)),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, call llms.ToolCall) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", call.FunctionCall.Name,
		"input", call.FunctionCall.Arguments,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, call llms.ToolCall, result tools.Result) {
	if result.IsError() {
		l.logger.ContextKV(ctx, xlog.ERROR,
			"event", "tool_error",
			"tool", call.FunctionCall.Name,
			"err", result.ErrorMessage(),
		)
		return
	}
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", call.FunctionCall.Name,
		"output", result.JSON(),
	)
}

func (l *PackageLogger) OnToolNotCalled(ctx context.Context, notice string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_not_called",
		"notice", notice,
	)
}

func (l *PackageLogger) OnFinalResponse(ctx context.Context, answer string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "final_response",
		"answer", answer,
	)
}

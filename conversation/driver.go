// Package conversation drives a single tool round-trip with a model:
// the user turn, at most one tool execution, and the final answer.
package conversation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpconverse/callbacks"
	"github.com/effective-security/mcpconverse/pkg/llms"
	"github.com/effective-security/mcpconverse/pkg/llmutils"
	"github.com/effective-security/mcpconverse/pkg/metricskey"
	"github.com/effective-security/mcpconverse/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpconverse", "conversation")

var (
	// ErrNoToolCall is recorded when the model stopped for tool use
	// without a tool call in the response.
	ErrNoToolCall = errors.New("tool use requested without a tool call")
	// ErrNoAnswer is returned when the final response has no text.
	ErrNoAnswer = errors.New("final response has no text")
)

// State of the conversation.
type State string

const (
	StateAwaitingFirstResponse State = "AwaitingFirstResponse"
	StateToolRequested         State = "ToolRequested"
	StateNameMismatch          State = "NameMismatch"
	StateAborted               State = "Aborted"
	StateDispatched            State = "Dispatched"
	StateAwaitingFinalResponse State = "AwaitingFinalResponse"
	StateDone                  State = "Done"
)

// Dispatcher provides tool declarations and executes tools.
type Dispatcher interface {
	Declarations(ctx context.Context, prefixes ...string) ([]llms.Tool, error)
	Dispatch(ctx context.Context, name string, args map[string]any) tools.Result
}

// Outcome is the result of a conversation run.
type Outcome struct {
	ConversationID string
	// State is the final state: Done or Aborted.
	State State
	// Transitions lists every state the conversation went through.
	Transitions []State
	// ToolCalled is true when the tool was executed.
	ToolCalled bool
	// ToolCall is the tool call taken from the first response.
	ToolCall *llms.ToolCall
	// ToolResult is the result sent back to the model.
	ToolResult *tools.Result
	// Answer is the text of the final response.
	Answer string
	// Notice is set when the conversation was aborted.
	Notice string
	// Err is recorded when the conversation was aborted on a malformed response.
	Err error
	// History is the message sequence of the final request.
	History []llms.Message
}

func (o *Outcome) moveTo(s State) {
	o.State = s
	o.Transitions = append(o.Transitions, s)
}

// Option configures the Driver.
type Option func(*Driver)

// WithCallback sets the event handler.
func WithCallback(h callbacks.Handler) Option {
	return func(d *Driver) {
		d.callback = h
	}
}

// WithIDGenerator overrides the conversation ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(d *Driver) {
		d.newID = fn
	}
}

// Driver runs the conversation.
type Driver struct {
	model    llms.Model
	reg      Dispatcher
	cfg      *Config
	callback callbacks.Handler
	newID    func() string
}

// New returns a Driver, nil cfg selects DefaultConfig.
func New(model llms.Model, reg Dispatcher, cfg *Config, opts ...Option) *Driver {
	if cfg == nil {
		cfg = &Config{}
	}
	d := &Driver{
		model:    model,
		reg:      reg,
		cfg:      cfg.WithDefaults(),
		callback: callbacks.NewNoop(),
		newID:    NewConversationID,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the effective configuration.
func (d *Driver) Config() *Config {
	return d.cfg
}

// Run executes the conversation.
// Errors are returned for failed model calls, unavailable tool host,
// or a final response without text. A response that does not request
// the expected tool is reported as an Aborted outcome.
func (d *Driver) Run(ctx context.Context) (*Outcome, error) {
	id := d.newID()
	ctx = WithConversationID(ctx, id)

	started := time.Now()
	defer metricskey.PerfConversationRun.MeasureSince(started, d.cfg.ModelID)

	out := &Outcome{ConversationID: id}
	d.callback.OnConversationStart(ctx, id, d.cfg.UserMessage)

	if err := d.run(ctx, out); err != nil {
		metricskey.StatsConversationsFailed.IncrCounter(1, d.cfg.ModelID)
		d.callback.OnConversationError(ctx, id, err)
		return nil, err
	}

	if out.State == StateAborted {
		metricskey.StatsConversationsAborted.IncrCounter(1, d.cfg.ModelID)
	} else {
		metricskey.StatsConversationsSucceeded.IncrCounter(1, d.cfg.ModelID)
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"conversation", id,
		"state", out.State,
		"tool_called", out.ToolCalled,
	)
	d.callback.OnConversationEnd(ctx, id, string(out.State))
	return out, nil
}

func (d *Driver) run(ctx context.Context, out *Outcome) error {
	decls, err := d.reg.Declarations(ctx, d.cfg.ToolPrefixes...)
	if err != nil {
		return errors.WithMessage(err, "failed to load tool declarations")
	}

	userTurn := llms.MessageFromTextParts(llms.RoleHuman, d.cfg.UserMessage)
	opts := d.callOptions(out.ConversationID, decls)

	out.moveTo(StateAwaitingFirstResponse)
	first, err := d.generate(ctx, []llms.Message{userTurn}, append(opts, llms.WithSystemPrompt(d.cfg.SystemPrompt))...)
	if err != nil {
		return errors.WithMessage(err, "initial request failed")
	}
	choice := first.Choices[0]
	d.callback.OnInitialResponse(ctx, choice)

	if choice.StopReason != llms.StopReasonToolUse {
		out.Answer = choice.Content
		out.moveTo(StateDone)
		return nil
	}

	out.moveTo(StateToolRequested)
	if len(choice.ToolCalls) == 0 || choice.ToolCalls[0].FunctionCall == nil {
		d.abort(ctx, out, ErrNoToolCall)
		return nil
	}
	if len(choice.ToolCalls) > 1 {
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "extra_tool_calls_ignored",
			"count", len(choice.ToolCalls),
		)
	}

	call := choice.ToolCalls[0]
	out.ToolCall = &call
	if call.FunctionCall.Name != d.cfg.ToolName {
		out.moveTo(StateNameMismatch)
		d.abort(ctx, out, nil)
		return nil
	}

	d.callback.OnToolStart(ctx, call)
	result := d.dispatch(ctx, call)
	out.ToolCalled = true
	out.ToolResult = &result
	out.moveTo(StateDispatched)
	d.callback.OnToolEnd(ctx, call, result)

	// only the first tool call is answered
	taken := *choice
	taken.ToolCalls = []llms.ToolCall{call}
	assistantTurn := taken.Message()

	out.History = []llms.Message{
		userTurn,
		assistantTurn,
		llms.MessageFromToolResponse(llms.RoleHuman, llms.ToolCallResponse{
			ToolCallID: call.ID,
			Name:       call.FunctionCall.Name,
			Content:    result.JSON(),
			IsError:    result.IsError(),
		}),
	}

	out.moveTo(StateAwaitingFinalResponse)
	final, err := d.generate(ctx, out.History, opts...)
	if err != nil {
		return errors.WithMessage(err, "final request failed")
	}

	answer, ok := firstText(final)
	if !ok {
		return errors.WithStack(ErrNoAnswer)
	}
	out.Answer = answer
	out.moveTo(StateDone)
	d.callback.OnFinalResponse(ctx, answer)
	return nil
}

func (d *Driver) abort(ctx context.Context, out *Outcome, err error) {
	out.Err = err
	out.Notice = NoticeToolNotCalled
	out.moveTo(StateAborted)
	d.callback.OnToolNotCalled(ctx, out.Notice)
}

// dispatch executes the tool call, invalid arguments are reported
// to the model as an error result.
func (d *Driver) dispatch(ctx context.Context, call llms.ToolCall) tools.Result {
	args, err := call.FunctionCall.ArgumentsMap()
	if err != nil {
		return tools.Fail(err.Error())
	}
	return d.reg.Dispatch(ctx, call.FunctionCall.Name, args)
}

// callOptions returns the options shared by both model calls.
func (d *Driver) callOptions(conversationID string, decls []llms.Tool) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithModel(d.cfg.ModelID),
		llms.WithMaxTokens(d.cfg.MaxTokens),
		llms.WithTopP(d.cfg.TopP),
		llms.WithTemperature(d.cfg.Temperature),
		llms.WithTopK(d.cfg.TopK),
		llms.WithTools(decls),
		llms.WithMetadata(map[string]any{"conversation_id": conversationID}),
	}
	if len(d.cfg.StopSequences) > 0 {
		opts = append(opts, llms.WithStopWords(d.cfg.StopSequences))
	}
	return opts
}

func (d *Driver) generate(ctx context.Context, messages []llms.Message, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	model := d.cfg.ModelID
	d.callback.OnLLMCallStart(ctx, d.model, messages)

	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messages)), model)
	metricskey.StatsLLMBytesSent.IncrCounter(float64(llmutils.CountMessagesContentSize(messages)), model)

	started := time.Now()
	resp, err := d.model.GenerateContent(ctx, messages, opts...)
	metricskey.PerfLLMCall.MeasureSince(started, model)
	if err != nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, model)
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, model)
		return nil, errors.Newf("model %s returned no choices", model)
	}

	metricskey.StatsLLMBytesReceived.IncrCounter(float64(llmutils.CountResponseContentSize(resp)), model)
	in, out, total := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(in), model)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(out), model)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(total), model)

	d.callback.OnLLMCallEnd(ctx, d.model, resp)
	return resp, nil
}

// firstText returns the first non-blank text block of the response.
func firstText(resp *llms.ContentResponse) (string, bool) {
	for _, c := range resp.Choices {
		if c == nil {
			continue
		}
		if text, ok := c.FirstText(); ok {
			return text, true
		}
	}
	return "", false
}

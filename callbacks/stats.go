package callbacks

import (
	"context"
	"sync"
	"time"

	"github.com/effective-security/mcpconverse/pkg/llms"
	"github.com/effective-security/mcpconverse/pkg/llmutils"
	"github.com/effective-security/mcpconverse/tools"
)

var TimeNowFn = time.Now

// RunStats is the summary of a conversation run.
type RunStats struct {
	ConversationID string
	State          string

	Duration          time.Duration
	LLMCalls          uint32
	LLMMessagesSent   uint32
	LLMBytesOut       uint64
	LLMBytesIn        uint64
	LLMInputTokens    uint64
	LLMOutputTokens   uint64
	LLMTotalTokens    uint64
	ToolCalls         uint32
	ToolCallsFailed   uint32
	ToolNotCalled     uint32
	ConversationError string
}

// Stats is a callback handler that collects RunStats.
type Stats struct {
	lock    sync.Mutex
	stats   RunStats
	started time.Time
}

func NewStats() *Stats {
	return &Stats{}
}

// Get returns a copy of the collected stats.
func (l *Stats) Get() RunStats {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.stats
}

func (l *Stats) OnConversationStart(ctx context.Context, conversationID, userMessage string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.stats = RunStats{ConversationID: conversationID}
	l.started = TimeNowFn()
}

func (l *Stats) OnConversationEnd(ctx context.Context, conversationID, state string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.stats.State = state
	l.stats.Duration = TimeNowFn().Sub(l.started)
}

func (l *Stats) OnConversationError(ctx context.Context, conversationID string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.stats.ConversationError = err.Error()
	l.stats.Duration = TimeNowFn().Sub(l.started)
}

func (l *Stats) OnLLMCallStart(ctx context.Context, llm llms.Model, messages []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.stats.LLMCalls++
	l.stats.LLMMessagesSent += uint32(len(messages))
	l.stats.LLMBytesOut += llmutils.CountMessagesContentSize(messages)
}

func (l *Stats) OnLLMCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	in, out, total := llmutils.CountTokens(resp)

	l.lock.Lock()
	defer l.lock.Unlock()
	l.stats.LLMBytesIn += llmutils.CountResponseContentSize(resp)
	l.stats.LLMInputTokens += uint64(in)
	l.stats.LLMOutputTokens += uint64(out)
	l.stats.LLMTotalTokens += uint64(total)
}

func (l *Stats) OnInitialResponse(ctx context.Context, choice *llms.ContentChoice) {}

func (l *Stats) OnToolStart(ctx context.Context, call llms.ToolCall) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.stats.ToolCalls++
}

func (l *Stats) OnToolEnd(ctx context.Context, call llms.ToolCall, result tools.Result) {
	if !result.IsError() {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	l.stats.ToolCallsFailed++
}

func (l *Stats) OnToolNotCalled(ctx context.Context, notice string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.stats.ToolNotCalled++
}

func (l *Stats) OnFinalResponse(ctx context.Context, answer string) {}

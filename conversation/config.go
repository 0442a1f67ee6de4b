package conversation

import (
	"github.com/effective-security/x/values"
)

// Defaults of the dividends scenario.
const (
	DefaultModelID      = "us.amazon.nova-lite-v1:0"
	DefaultSystemPrompt = "You are a friend. The user and you will engage in a spoken " +
		"dialog exchanging the transcripts of a natural real-time conversation."
	DefaultUserMessage = "Give me dividend information for Apple stock"
	DefaultToolName    = "get_dividends"
	DefaultMaxTokens   = 300
	DefaultTopP        = 1.0
	DefaultTemperature = 1.0
	DefaultTopK        = 1
)

// NoticeToolNotCalled is reported when the model did not request the expected tool.
const NoticeToolNotCalled = "The dividends information tool was not called"

// Config specifies the conversation scenario and the sampling parameters.
// Zero values are replaced with the defaults.
type Config struct {
	// ModelID is the Bedrock model or inference profile ID.
	ModelID string `json:"model_id,omitempty" yaml:"model_id,omitempty"`
	// SystemPrompt is sent with the first request only.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	// UserMessage is the opening user turn.
	UserMessage string `json:"user_message,omitempty" yaml:"user_message,omitempty"`
	// ToolName is the only tool the driver executes.
	ToolName string `json:"tool_name,omitempty" yaml:"tool_name,omitempty"`
	// ToolPrefixes select the tools declared to the model.
	ToolPrefixes []string `json:"tool_prefixes,omitempty" yaml:"tool_prefixes,omitempty"`

	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	TopP        float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopK        int     `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	// StopSequences end the generation, none by default.
	StopSequences []string `json:"stop_sequences,omitempty" yaml:"stop_sequences,omitempty"`
}

// DefaultConfig returns the dividends scenario.
func DefaultConfig() *Config {
	return new(Config).WithDefaults()
}

// WithDefaults returns a copy of the config with zero values replaced by defaults.
func (c *Config) WithDefaults() *Config {
	res := *c
	res.ModelID = values.StringsCoalesce(c.ModelID, DefaultModelID)
	res.SystemPrompt = values.StringsCoalesce(c.SystemPrompt, DefaultSystemPrompt)
	res.UserMessage = values.StringsCoalesce(c.UserMessage, DefaultUserMessage)
	res.ToolName = values.StringsCoalesce(c.ToolName, DefaultToolName)
	if len(c.ToolPrefixes) == 0 {
		res.ToolPrefixes = []string{res.ToolName}
	} else {
		res.ToolPrefixes = append([]string{}, c.ToolPrefixes...)
	}
	res.MaxTokens = values.NumbersCoalesce(c.MaxTokens, DefaultMaxTokens)
	res.TopP = values.Select(c.TopP != 0, c.TopP, DefaultTopP)
	res.Temperature = values.Select(c.Temperature != 0, c.Temperature, DefaultTemperature)
	res.TopK = values.NumbersCoalesce(c.TopK, DefaultTopK)
	if len(c.StopSequences) > 0 {
		res.StopSequences = append([]string{}, c.StopSequences...)
	}
	return &res
}

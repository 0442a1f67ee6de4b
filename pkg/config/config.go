// Package config provides the YAML configuration of the commands.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpconverse/conversation"
	"github.com/effective-security/mcpconverse/mcp"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// Defaults
const (
	DefaultLogLevel      = "INFO"
	DefaultToolHostName  = "dividends"
	DefaultToolHostURL   = "http://localhost:8000/mcp"
	DefaultToolTimeout   = "30s"
	DefaultListenAddress = "localhost:8000"
	DefaultServerPath    = "/mcp"
	DefaultServerVersion = "v1.0.0"
)

// Configuration of the commands
type Configuration struct {
	// Region specifies AWS region, the default chain is used when empty.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// LogLevel specifies the default log level: TRACE|DEBUG|INFO|NOTICE|WARNING|ERROR
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	ToolHost  ToolHost  `json:"tool_host" yaml:"tool_host"`
	Scenario  Scenario  `json:"scenario" yaml:"scenario"`
	Inference Inference `json:"inference" yaml:"inference"`
	Server    Server    `json:"server" yaml:"server"`
}

// ToolHost specifies the MCP tool host to connect to.
type ToolHost struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
	// Timeout is a duration string, e.g. 30s
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Scenario specifies the conversation.
type Scenario struct {
	ModelID      string   `json:"model_id,omitempty" yaml:"model_id,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	UserMessage  string   `json:"user_message,omitempty" yaml:"user_message,omitempty"`
	ToolName     string   `json:"tool_name,omitempty" yaml:"tool_name,omitempty"`
	ToolPrefixes []string `json:"tool_prefixes,omitempty" yaml:"tool_prefixes,omitempty"`
}

// Inference specifies the sampling parameters.
type Inference struct {
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	TopP        float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopK        int     `json:"top_k,omitempty" yaml:"top_k,omitempty"`

	StopSequences []string `json:"stop_sequences,omitempty" yaml:"stop_sequences,omitempty"`
}

// Server specifies the dividends tool host.
type Server struct {
	Listen  string `json:"listen,omitempty" yaml:"listen,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// DataFile overrides the embedded market data.
	DataFile string `json:"data_file,omitempty" yaml:"data_file,omitempty"`
}

// Load returns the configuration from file,
// or the defaults if file is empty.
func Load(file string) (*Configuration, error) {
	cfg := new(Configuration)
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to load config %s", file)
		}
	}
	cfg.SetDefaults()
	if _, err := cfg.HostConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults fills the empty values.
func (c *Configuration) SetDefaults() {
	c.LogLevel = values.StringsCoalesce(c.LogLevel, DefaultLogLevel)
	c.ToolHost.Name = values.StringsCoalesce(c.ToolHost.Name, DefaultToolHostName)
	c.ToolHost.URL = values.StringsCoalesce(c.ToolHost.URL, DefaultToolHostURL)
	c.ToolHost.Timeout = values.StringsCoalesce(c.ToolHost.Timeout, DefaultToolTimeout)
	c.Server.Listen = values.StringsCoalesce(c.Server.Listen, DefaultListenAddress)
	c.Server.Path = values.StringsCoalesce(c.Server.Path, DefaultServerPath)
	c.Server.Version = values.StringsCoalesce(c.Server.Version, DefaultServerVersion)
}

// HostConfig returns the MCP host config.
func (c *Configuration) HostConfig() (mcp.HostConfig, error) {
	timeout, err := time.ParseDuration(c.ToolHost.Timeout)
	if err != nil {
		return mcp.HostConfig{}, errors.Wrapf(err, "invalid tool_host.timeout")
	}
	return mcp.HostConfig{
		Name:     c.ToolHost.Name,
		Endpoint: c.ToolHost.URL,
		Timeout:  timeout,
	}, nil
}

// ConversationConfig returns the conversation config with defaults applied.
func (c *Configuration) ConversationConfig() *conversation.Config {
	return (&conversation.Config{
		ModelID:      c.Scenario.ModelID,
		SystemPrompt: c.Scenario.SystemPrompt,
		UserMessage:  c.Scenario.UserMessage,
		ToolName:     c.Scenario.ToolName,
		ToolPrefixes: c.Scenario.ToolPrefixes,
		MaxTokens:    c.Inference.MaxTokens,
		TopP:         c.Inference.TopP,
		Temperature:  c.Inference.Temperature,
		TopK:         c.Inference.TopK,

		StopSequences: c.Inference.StopSequences,
	}).WithDefaults()
}

// ParseLogLevel returns the xlog level for the name, INFO if unknown.
func ParseLogLevel(name string) xlog.LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return xlog.TRACE
	case "DEBUG":
		return xlog.DEBUG
	case "NOTICE":
		return xlog.NOTICE
	case "WARNING", "WARN":
		return xlog.WARNING
	case "ERROR":
		return xlog.ERROR
	case "CRITICAL":
		return xlog.CRITICAL
	}
	return xlog.INFO
}

// Command converse runs the dividends tool round-trip against Bedrock
// with tools discovered on an MCP tool host.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpconverse/callbacks"
	"github.com/effective-security/mcpconverse/conversation"
	"github.com/effective-security/mcpconverse/mcp"
	"github.com/effective-security/mcpconverse/pkg/config"
	"github.com/effective-security/mcpconverse/pkg/llms"
	"github.com/effective-security/mcpconverse/pkg/llms/bedrock"
	"github.com/effective-security/mcpconverse/pkg/llmutils"
	"github.com/effective-security/mcpconverse/registry"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpconverse", "converse")

type flags struct {
	cfgFile string
	debug   bool
	verbose bool
	output  string
	region  string
	url     string
	model   string
	message string
}

func main() {
	if err := rootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd(out io.Writer) *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "converse",
		Short:         "Bedrock Converse with tools from an MCP tool host",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&f.cfgFile, "cfg", "", "path to the configuration file")
	cmd.PersistentFlags().BoolVar(&f.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&f.url, "url", "", "MCP tool host URL")

	cmd.AddCommand(runCmd(f), toolsCmd(f))
	return cmd
}

func runCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ask the model for dividend information and execute the tool it requests",
		Example: `  converse run
  converse run --cfg converse.yaml --verbose
  converse run --message "Give me dividend information for Microsoft stock"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConversation(cmd, f)
		},
	}
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "print LLM calls and tool results")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "output format: text|json|yaml")
	cmd.Flags().StringVar(&f.region, "region", "", "AWS region")
	cmd.Flags().StringVar(&f.model, "model", "", "Bedrock model ID")
	cmd.Flags().StringVar(&f.message, "message", "", "user message")
	return cmd
}

func toolsCmd(f *flags) *cobra.Command {
	var prefixes []string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool declarations discovered on the tool host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			reg, closer, err := newRegistry(cfg)
			if err != nil {
				return err
			}
			defer closer()

			decls, err := reg.Declarations(ctx, prefixes...)
			if err != nil {
				return err
			}
			if decls == nil {
				decls = []llms.Tool{}
			}
			fmt.Fprintln(cmd.OutOrStdout(), llmutils.ToJSONIndent(decls))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&prefixes, "prefix", []string{""}, "tool name prefixes to include")
	return cmd
}

func loadConfig(f *flags) (*config.Configuration, error) {
	cfg, err := config.Load(f.cfgFile)
	if err != nil {
		return nil, err
	}
	if f.url != "" {
		cfg.ToolHost.URL = f.url
	}
	if f.region != "" {
		cfg.Region = f.region
	}
	if f.model != "" {
		cfg.Scenario.ModelID = f.model
	}
	if f.message != "" {
		cfg.Scenario.UserMessage = f.message
	}

	level := config.ParseLogLevel(cfg.LogLevel)
	if f.debug {
		level = xlog.DEBUG
	}
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	xlog.SetGlobalLogLevel(level)
	return cfg, nil
}

func newRegistry(cfg *config.Configuration) (*registry.Registry, func(), error) {
	hostCfg, err := cfg.HostConfig()
	if err != nil {
		return nil, nil, err
	}
	host := mcp.NewHost(hostCfg)
	closer := func() {
		if err := host.Close(); err != nil {
			logger.KV(xlog.ERROR, "reason", "close", "err", err.Error())
		}
	}
	return registry.New(host), closer, nil
}

func runConversation(cmd *cobra.Command, f *flags) error {
	switch f.output {
	case "", "text", "json", "yaml":
	default:
		return errors.Newf("unsupported output format: %s", f.output)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cc := cfg.ConversationConfig()
	llm, err := bedrock.New(
		bedrock.WithModel(cc.ModelID),
		bedrock.WithRegion(cfg.Region),
	)
	if err != nil {
		return err
	}
	if !llm.GetProviderType().Supports(llms.CapabilityFunctionCalling) {
		return errors.Newf("provider %s does not support tool calls", llm.GetProviderType())
	}

	reg, closer, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	defer closer()

	stats := callbacks.NewStats()
	cb := callbacks.NewFanout(
		callbacks.NewPackageLogger(logger),
		stats,
	)
	if f.output == "" || f.output == "text" {
		mode := callbacks.ModeDefault
		if f.verbose {
			mode = callbacks.ModeVerbose
		}
		cb.Add(callbacks.NewPrinter(cmd.OutOrStdout(), mode))
	}

	res, err := conversation.New(llm, reg, cc, conversation.WithCallback(cb)).Run(ctx)
	if err != nil {
		if errors.Is(err, mcp.ErrConnection) {
			return errors.WithHintf(err, "is the tool host running at %s?", cfg.ToolHost.URL)
		}
		return err
	}

	if err = printOutcome(cmd.OutOrStdout(), f.output, res); err != nil {
		return err
	}

	s := stats.Get()
	logger.ContextKV(ctx, xlog.INFO,
		"conversation", s.ConversationID,
		"state", s.State,
		"duration", s.Duration.String(),
		"llm_calls", s.LLMCalls,
		"input_tokens", s.LLMInputTokens,
		"output_tokens", s.LLMOutputTokens,
	)
	return nil
}

// summary is the printable outcome of a conversation.
type summary struct {
	ConversationID string `json:"conversation_id" yaml:"conversation_id"`
	State          string `json:"state" yaml:"state"`
	ToolCalled     bool   `json:"tool_called" yaml:"tool_called"`
	ToolName       string `json:"tool_name,omitempty" yaml:"tool_name,omitempty"`
	ToolInput      any    `json:"tool_input,omitempty" yaml:"tool_input,omitempty"`
	ToolResult     any    `json:"tool_result,omitempty" yaml:"tool_result,omitempty"`
	Answer         string `json:"answer,omitempty" yaml:"answer,omitempty"`
	Notice         string `json:"notice,omitempty" yaml:"notice,omitempty"`
}

func newSummary(o *conversation.Outcome) *summary {
	s := &summary{
		ConversationID: o.ConversationID,
		State:          string(o.State),
		ToolCalled:     o.ToolCalled,
		Answer:         o.Answer,
		Notice:         o.Notice,
	}
	if o.ToolCall != nil && o.ToolCall.FunctionCall != nil {
		s.ToolName = o.ToolCall.FunctionCall.Name
		if args, err := o.ToolCall.FunctionCall.ArgumentsMap(); err == nil {
			s.ToolInput = args
		} else {
			s.ToolInput = o.ToolCall.FunctionCall.Arguments
		}
	}
	if o.ToolResult != nil {
		s.ToolResult = o.ToolResult.Value()
	}
	return s
}

func printOutcome(w io.Writer, format string, o *conversation.Outcome) error {
	switch format {
	case "", "text":
		return nil
	case "json":
		fmt.Fprintln(w, llmutils.ToJSONIndent(newSummary(o)))
	case "yaml":
		fmt.Fprint(w, llmutils.ToYAML(newSummary(o)))
	default:
		return errors.Newf("unsupported output format: %s", format)
	}
	return nil
}

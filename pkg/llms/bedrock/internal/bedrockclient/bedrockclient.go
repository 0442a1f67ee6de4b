package bedrockclient

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpconverse/pkg/llms"
)

// ConverseAPI is the subset of the Bedrock runtime client used by Client.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client is a Bedrock client.
type Client struct {
	client ConverseAPI
}

// Message is a chunk of text or a tool exchange
// that will be sent to the provider.
//
// The provider may then transform the message to its own
// format before sending it to the LLM model API.
type Message struct {
	Role    llms.Role
	Content string
	// Type may be "text", "tool_use", "tool_result"
	Type string
	// Tool-specific fields
	ToolCallID string // For tool use and tool results
	ToolName   string // For tool use
	ToolInput  string // For tool use (JSON)
	IsError    bool   // For tool results
}

// Message types.
const (
	MessageTypeText       = "text"
	MessageTypeToolUse    = "tool_use"
	MessageTypeToolResult = "tool_result"
)

func getProvider(modelID string) string {
	// Handle Inference Profiles (e.g., "us.amazon.nova-lite-v1:0")
	// and direct model IDs (e.g., "anthropic.claude-3-sonnet-20240229-v1:0")
	parts := strings.Split(modelID, ".")
	if len(parts) >= 2 && inferenceProfilePrefixes[parts[0]] {
		return parts[1]
	}
	return parts[0]
}

// inferenceProfilePrefixes are the geography prefixes of cross-region inference profiles.
var inferenceProfilePrefixes = map[string]bool{
	"us":     true,
	"us-gov": true,
	"eu":     true,
	"apac":   true,
	"jp":     true,
	"au":     true,
	"ca":     true,
	"global": true,
}

// NewClient creates a new Bedrock client.
func NewClient(client ConverseAPI) *Client {
	return &Client{
		client: client,
	}
}

// CreateCompletion creates a new completion response from the provider
// after sending the messages to the provider.
func (c *Client) CreateCompletion(ctx context.Context,
	modelID string,
	messages []Message,
	options llms.CallOptions,
) (*llms.ContentResponse, error) {
	provider := getProvider(modelID)
	switch provider {
	case "amazon", "anthropic", "meta", "mistral", "cohere", "ai21":
	default:
		return nil, errors.Newf("bedrock: unsupported provider: %s", provider)
	}

	input, err := buildConverseInput(provider, modelID, messages, options)
	if err != nil {
		return nil, err
	}

	output, err := c.client.Converse(ctx, input)
	if err != nil {
		return nil, errors.Wrapf(err, "bedrock: converse failed for %s", modelID)
	}
	return parseConverseOutput(output)
}

func getMaxTokens(maxTokens, defaultValue int) int {
	if maxTokens <= 0 {
		return defaultValue
	}
	return maxTokens
}

package bedrockclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpconverse/pkg/llms"
)

// Ref: https://docs.aws.amazon.com/bedrock/latest/APIReference/API_runtime_Converse.html

const defaultMaxTokens = 2048

func buildConverseInput(provider, modelID string, messages []Message, options llms.CallOptions) (*bedrockruntime.ConverseInput, error) {
	msgs, system, err := processInputMessages(provider, messages)
	if err != nil {
		return nil, err
	}
	if options.SystemPrompt != "" {
		system = append([]types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: options.SystemPrompt},
		}, system...)
	}

	infCfg := &types.InferenceConfiguration{
		MaxTokens: aws.Int32(int32(getMaxTokens(options.MaxTokens, defaultMaxTokens))),
	}
	if options.Temperature > 0 {
		infCfg.Temperature = aws.Float32(float32(options.Temperature))
	}
	if options.TopP > 0 {
		infCfg.TopP = aws.Float32(float32(options.TopP))
	}
	if len(options.StopWords) > 0 {
		infCfg.StopSequences = options.StopWords
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(modelID),
		Messages:        msgs,
		InferenceConfig: infCfg,
	}
	if len(system) > 0 {
		input.System = system
	}
	if len(options.Metadata) > 0 {
		input.RequestMetadata = requestMetadata(options.Metadata)
	}
	if fields := additionalModelRequestFields(provider, options); fields != nil {
		input.AdditionalModelRequestFields = document.NewLazyDocument(fields)
	}
	if len(options.Tools) > 0 {
		input.ToolConfig = &types.ToolConfiguration{
			Tools: toolSpecs(options.Tools),
		}
	}
	return input, nil
}

// requestMetadata converts the call metadata to the string pairs
// attached to the invocation logs.
func requestMetadata(md map[string]any) map[string]string {
	res := make(map[string]string, len(md))
	for k, v := range md {
		if s, ok := v.(string); ok {
			res[k] = s
			continue
		}
		res[k] = fmt.Sprint(v)
	}
	return res
}

// additionalModelRequestFields returns the provider specific fields
// that are not part of the common inference configuration.
func additionalModelRequestFields(provider string, options llms.CallOptions) map[string]any {
	if options.TopK <= 0 {
		return nil
	}
	switch provider {
	case "amazon":
		return map[string]any{
			"inferenceConfig": map[string]any{"topK": options.TopK},
		}
	case "anthropic":
		return map[string]any{"top_k": options.TopK}
	}
	return nil
}

func toolSpecs(list []llms.Tool) []types.Tool {
	specs := make([]types.Tool, 0, len(list))
	for _, tool := range list {
		if tool.Function == nil {
			continue
		}
		schema := tool.Function.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		spec := types.ToolSpecification{
			Name: aws.String(tool.Function.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{
				Value: document.NewLazyDocument(schema),
			},
		}
		if tool.Function.Description != "" {
			spec.Description = aws.String(tool.Function.Description)
		}
		specs = append(specs, &types.ToolMemberToolSpec{Value: spec})
	}
	return specs
}

// processInputMessages groups consecutive messages of the same role into one turn,
// and returns the turns and the system blocks.
func processInputMessages(provider string, messages []Message) ([]types.Message, []types.SystemContentBlock, error) {
	chunkedMessages := make([][]Message, 0, len(messages))
	currentChunk := make([]Message, 0, len(messages))
	var lastRole types.ConversationRole
	var lastSystem bool
	for _, message := range messages {
		role, system, err := getConverseRole(message.Role)
		if err != nil {
			return nil, nil, err
		}
		if len(currentChunk) > 0 && (role != lastRole || system != lastSystem) {
			chunkedMessages = append(chunkedMessages, currentChunk)
			currentChunk = make([]Message, 0, len(messages))
		}
		currentChunk = append(currentChunk, message)
		lastRole = role
		lastSystem = system
	}
	if len(currentChunk) > 0 {
		chunkedMessages = append(chunkedMessages, currentChunk)
	}

	var system []types.SystemContentBlock
	turns := make([]types.Message, 0, len(chunkedMessages))
	for _, chunk := range chunkedMessages {
		role, isSystem, _ := getConverseRole(chunk[0].Role)
		if isSystem {
			for _, message := range chunk {
				if message.Type != MessageTypeText {
					return nil, nil, errors.New("system prompt must be text")
				}
				system = append(system, &types.SystemContentBlockMemberText{Value: message.Content})
			}
			continue
		}

		content := make([]types.ContentBlock, 0, len(chunk))
		for _, message := range chunk {
			block, err := getContentBlock(provider, message)
			if err != nil {
				return nil, nil, err
			}
			if block != nil {
				content = append(content, block)
			}
		}
		if len(content) == 0 {
			continue
		}
		turns = append(turns, types.Message{
			Role:    role,
			Content: content,
		})
	}
	return turns, system, nil
}

// getConverseRole maps the role to the Converse role,
// the second value is true for system messages.
func getConverseRole(role llms.Role) (types.ConversationRole, bool, error) {
	switch role {
	case llms.RoleSystem:
		return "", true, nil
	case llms.RoleAI:
		return types.ConversationRoleAssistant, false, nil
	case llms.RoleHuman, llms.RoleTool:
		return types.ConversationRoleUser, false, nil
	default:
		return "", false, errors.Wrapf(llms.ErrUnexpectedRole, "role not supported: %s", role)
	}
}

func getContentBlock(provider string, message Message) (types.ContentBlock, error) {
	switch message.Type {
	case MessageTypeText:
		// blank text blocks are rejected by the service
		if strings.TrimSpace(message.Content) == "" {
			return nil, nil
		}
		return &types.ContentBlockMemberText{Value: message.Content}, nil

	case MessageTypeToolUse:
		input := map[string]any{}
		if strings.TrimSpace(message.ToolInput) != "" {
			if err := json.Unmarshal([]byte(message.ToolInput), &input); err != nil {
				return nil, errors.Wrapf(err, "invalid tool input for %s", message.ToolName)
			}
		}
		return &types.ContentBlockMemberToolUse{
			Value: types.ToolUseBlock{
				ToolUseId: aws.String(message.ToolCallID),
				Name:      aws.String(message.ToolName),
				Input:     document.NewLazyDocument(input),
			},
		}, nil

	case MessageTypeToolResult:
		result := types.ToolResultBlock{
			ToolUseId: aws.String(message.ToolCallID),
			Content:   []types.ToolResultContentBlock{toolResultContent(message.Content)},
		}
		if acceptsToolResultStatus(provider) {
			result.Status = types.ToolResultStatusSuccess
			if message.IsError {
				result.Status = types.ToolResultStatusError
			}
		}
		return &types.ContentBlockMemberToolResult{Value: result}, nil
	}
	return nil, errors.Newf("unsupported message type: %s", message.Type)
}

// acceptsToolResultStatus reports if the provider accepts the status field
// of a tool result, Nova and Claude models do.
func acceptsToolResultStatus(provider string) bool {
	switch provider {
	case "amazon", "anthropic":
		return true
	}
	return false
}

// toolResultContent returns a JSON block when the content is a JSON object,
// otherwise a text block.
func toolResultContent(content string) types.ToolResultContentBlock {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return &types.ToolResultContentBlockMemberJson{Value: document.NewLazyDocument(obj)}
	}
	return &types.ToolResultContentBlockMemberText{Value: content}
}

func parseConverseOutput(output *bedrockruntime.ConverseOutput) (*llms.ContentResponse, error) {
	if output == nil {
		return nil, errors.New("bedrock: empty response")
	}
	msg, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, errors.Newf("bedrock: unexpected output type %T", output.Output)
	}

	choice := &llms.ContentChoice{
		StopReason:     string(output.StopReason),
		GenerationInfo: map[string]any{},
	}

	var texts []string
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			texts = append(texts, b.Value)
		case *types.ContentBlockMemberToolUse:
			args := "{}"
			if b.Value.Input != nil {
				js, err := b.Value.Input.MarshalSmithyDocument()
				if err != nil {
					return nil, errors.Wrapf(err, "bedrock: failed to decode tool input")
				}
				args = string(js)
			}
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   aws.ToString(b.Value.ToolUseId),
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      aws.ToString(b.Value.Name),
					Arguments: args,
				},
			})
		}
	}
	choice.TextBlocks = texts
	choice.Content = strings.Join(texts, "\n")

	if output.Usage != nil {
		choice.GenerationInfo["input_tokens"] = int(aws.ToInt32(output.Usage.InputTokens))
		choice.GenerationInfo["output_tokens"] = int(aws.ToInt32(output.Usage.OutputTokens))
		choice.GenerationInfo["total_tokens"] = int(aws.ToInt32(output.Usage.TotalTokens))
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{choice},
	}, nil
}

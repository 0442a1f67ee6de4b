package callbacks

import (
	"encoding/json"

	"github.com/effective-security/mcpconverse/pkg/llms"
)

// MessageJSON is the printable form of an assistant turn,
// shaped as the Converse API output message.
type MessageJSON struct {
	Role    string             `json:"role"`
	Content []ContentBlockJSON `json:"content"`
}

// ContentBlockJSON is a text or a tool use block.
type ContentBlockJSON struct {
	Text    string       `json:"text,omitempty"`
	ToolUse *ToolUseJSON `json:"toolUse,omitempty"`
}

// ToolUseJSON is a tool use request.
type ToolUseJSON struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

// AssistantMessage returns the printable form of the choice.
func AssistantMessage(choice *llms.ContentChoice) *MessageJSON {
	m := &MessageJSON{
		Role:    "assistant",
		Content: []ContentBlockJSON{},
	}
	for _, text := range choice.Texts() {
		m.Content = append(m.Content, ContentBlockJSON{Text: text})
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		input := json.RawMessage(tc.FunctionCall.Arguments)
		if !json.Valid(input) {
			js, _ := json.Marshal(tc.FunctionCall.Arguments)
			input = js
		}
		m.Content = append(m.Content, ContentBlockJSON{
			ToolUse: &ToolUseJSON{
				ToolUseID: tc.ID,
				Name:      tc.FunctionCall.Name,
				Input:     input,
			},
		})
	}
	return m
}

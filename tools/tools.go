package tools

import (
	"context"
)

//go:generate mockgen -source=tools.go -destination=../mocks/mocktools/tools_mock.gen.go -package mocktools

// Tool is a tool the model can ask to run.
type Tool interface {
	// Name returns the name of the Tool, unique within a Host.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	Description() string
	// InputSchema returns the JSON schema of the tool arguments.
	InputSchema() map[string]any
	// Invoke executes the tool with the given arguments.
	// Failures are reported in the Result, never as a panic or error.
	Invoke(ctx context.Context, args map[string]any) Result
}

// Host owns a set of tools and exposes them for discovery.
type Host interface {
	// ListTools returns the full list of tools served by the host.
	ListTools(ctx context.Context) ([]Tool, error)
}

package conversation

import (
	"context"

	"github.com/google/uuid"
)

type contextKey int

const (
	keyConversationID contextKey = iota
)

// NewConversationID returns a new random conversation ID.
func NewConversationID() string {
	return uuid.NewString()
}

// WithConversationID returns a new context with the conversation ID
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyConversationID, id)
}

// GetConversationID retrieves the conversation ID from the context,
// or an empty string.
func GetConversationID(ctx context.Context) string {
	if v, ok := ctx.Value(keyConversationID).(string); ok {
		return v
	}
	return ""
}

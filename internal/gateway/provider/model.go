package provider

import "context"

type ChatPayload struct {
	System      string
	User        string
	Temperature *float64
	MaxTokens   int
}

// ModelProvider is one chat-completion backend.
type ModelProvider interface {
	ID() string
	Model() string
	Call(ctx context.Context, payload ChatPayload) (string, error)
}

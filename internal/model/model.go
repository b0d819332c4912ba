// Package model talks to the language model that drives the agent.
package model

import "context"

// Model generates the next assistant turn for a conversation.
type Model interface {
	// Generate runs inference on the model.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// IsAvailable checks if the model is ready.
	IsAvailable() bool

	// Name returns the model identifier.
	Name() string
}

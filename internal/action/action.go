// Package action provides the action registry and dispatcher.
//
// An action is a named capability the model may invoke through a tool call.
// Actions are either registered permanently or offered once as part of an
// ephemeral group; the dispatcher resolves tool calls against both, runs the
// handler outside the registry lock and links the result to the call.
package action

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNameEmpty  = errors.New("action name is empty")
	ErrNilHandler = errors.New("action handler is nil")
)

// Handler runs an action. It may block, e.g. while waiting on a remote peer.
type Handler func(ctx context.Context, params map[string]any) (string, error)

// Action is an immutable, named capability.
type Action struct {
	Name        string
	Description string
	// Schema is the JSON schema of the parameters. It is passed to the
	// model as-is and never interpreted here.
	Schema  any
	Handler Handler
}

// Validate checks that the action can be registered.
func (a Action) Validate() error {
	if a.Name == "" {
		return ErrNameEmpty
	}
	if a.Handler == nil {
		return fmt.Errorf("%w: %q", ErrNilHandler, a.Name)
	}
	return nil
}

// Func adapts a context-free function into a Handler.
func Func(fn func(params map[string]any) (string, error)) Handler {
	return func(_ context.Context, params map[string]any) (string, error) {
		return fn(params)
	}
}

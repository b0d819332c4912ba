// Package convo holds the conversation log the agent reasons over.
//
// Entries form a closed set of kinds. Code that renders the log for a
// model switches over the concrete types; isEntry keeps the set sealed.
package convo

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyAnswered is returned when a tool call is linked to a second result.
var ErrAlreadyAnswered = errors.New("tool call already has a result")

// Kind names an entry variant. It is also the journal column value.
type Kind string

const (
	KindHuman           Kind = "human"
	KindEnvironmental   Kind = "environmental"
	KindSystemDirective Kind = "system_directive"
	KindModelOutput     Kind = "model_output"
	KindToolCall        Kind = "tool_call"
	KindToolResult      Kind = "tool_result"
)

// Entry is one item of the conversation log.
type Entry interface {
	ID() string
	Value() string
	Kind() Kind
	CreatedAt() time.Time
	isEntry()
}

type base struct {
	id        string
	value     string
	createdAt time.Time
}

func newBase(value string) base {
	return base{id: uuid.NewString(), value: value, createdAt: time.Now()}
}

func (b base) ID() string           { return b.id }
func (b base) Value() string        { return b.value }
func (b base) CreatedAt() time.Time { return b.createdAt }
func (base) isEntry()               {}

// Human is something the user said.
type Human struct{ base }

// Environmental is a signal pushed by a peer about the outside world.
type Environmental struct{ base }

// SystemDirective is an instruction from the runtime itself.
type SystemDirective struct{ base }

// ModelOutput is text produced by the model.
type ModelOutput struct{ base }

func NewHuman(value string) *Human                     { return &Human{newBase(value)} }
func NewEnvironmental(value string) *Environmental     { return &Environmental{newBase(value)} }
func NewSystemDirective(value string) *SystemDirective { return &SystemDirective{newBase(value)} }
func NewModelOutput(value string) *ModelOutput         { return &ModelOutput{newBase(value)} }

func (*Human) Kind() Kind           { return KindHuman }
func (*Environmental) Kind() Kind   { return KindEnvironmental }
func (*SystemDirective) Kind() Kind { return KindSystemDirective }
func (*ModelOutput) Kind() Kind     { return KindModelOutput }

// ToolCall is a request by the model to run the action named by Value.
// It stays pending until a ToolResult is linked to it.
type ToolCall struct {
	base
	params map[string]any

	mu         sync.Mutex
	responseID string
}

// NewToolCall creates a pending tool call for the named action.
func NewToolCall(name string, params map[string]any) *ToolCall {
	if params == nil {
		params = map[string]any{}
	}
	return &ToolCall{base: newBase(name), params: params}
}

func (*ToolCall) Kind() Kind { return KindToolCall }

// Name returns the requested action name.
func (c *ToolCall) Name() string { return c.value }

// Params returns the call arguments. Callers must not mutate the map.
func (c *ToolCall) Params() map[string]any { return c.params }

// ResponseID returns the linked result id, or "" while pending.
func (c *ToolCall) ResponseID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responseID
}

// Pending reports whether no result has been linked yet.
func (c *ToolCall) Pending() bool {
	return c.ResponseID() == ""
}

// Answer links result to the call. It succeeds at most once.
func (c *ToolCall) Answer(result *ToolResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.responseID != "" {
		return ErrAlreadyAnswered
	}
	c.responseID = result.ID()
	return nil
}

// ToolResult is the outcome of running a ToolCall.
type ToolResult struct {
	base
	callID string
}

// NewToolResult creates a result answering the call with the given id.
func NewToolResult(value, callID string) *ToolResult {
	return &ToolResult{base: newBase(value), callID: callID}
}

func (*ToolResult) Kind() Kind { return KindToolResult }

// CallID returns the id of the ToolCall this result answers.
func (r *ToolResult) CallID() string { return r.callID }

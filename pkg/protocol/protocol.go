// Package protocol defines the JSON messages exchanged with action peers.
// These types can be imported by peers written in Go.
//
// Peers send messages discriminated by "path"; Vox sends messages
// discriminated by "type" and acknowledges inbound messages with an Ack.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound paths (peer -> vox).
const (
	PathRegisterAction    = "actions/register"
	PathRegisterEphemeral = "actions/register/ephemeral"
	PathActionResult      = "action/result"
	PathEnvironment       = "context/environment"
	PathForceAction       = "actions/force"
)

// Outbound types (vox -> peer).
const (
	TypeSendAllActions = "send_all_actions"
	TypeExecuteAction  = "execute_action"
)

// Ack messages.
const (
	MessageInvalidJSON   = "Invalid JSON"
	MessageUnknownType   = "unknown message type"
	MessageUnknownAction = "action_id does not exist"
)

var (
	// ErrMalformed is returned when an inbound frame is not a JSON object.
	ErrMalformed = errors.New("malformed message")

	// ErrMissingField is returned when a path's required field is absent.
	ErrMissingField = errors.New("missing field")
)

// ActionSpec describes one action a peer offers.
type ActionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Inbound is the union of every peer message. Which fields are meaningful
// depends on Path.
type Inbound struct {
	Path string `json:"path"`

	// actions/register, actions/force
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`

	// actions/register/ephemeral
	Actions []ActionSpec `json:"actions,omitempty"`

	// action/result
	ActionID string          `json:"action_id,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`

	// context/environment
	Value *string `json:"value,omitempty"`
}

// Decode parses one inbound frame.
func Decode(data []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &in, nil
}

// Spec returns the single action carried by an actions/register message.
func (in *Inbound) Spec() ActionSpec {
	return ActionSpec{Name: in.Name, Description: in.Description, Schema: in.Schema}
}

// Validate checks the fields required by the message's path. Unknown
// paths are not an error here; routing decides what to do with them.
func (in *Inbound) Validate() error {
	switch in.Path {
	case PathRegisterAction, PathForceAction:
		if in.Name == "" {
			return fmt.Errorf("%w: name", ErrMissingField)
		}
	case PathRegisterEphemeral:
		if len(in.Actions) == 0 {
			return fmt.Errorf("%w: actions", ErrMissingField)
		}
		for i, spec := range in.Actions {
			if spec.Name == "" {
				return fmt.Errorf("%w: actions[%d].name", ErrMissingField, i)
			}
		}
	case PathActionResult:
		if in.ActionID == "" {
			return fmt.Errorf("%w: action_id", ErrMissingField)
		}
		if in.Result == nil {
			return fmt.Errorf("%w: result", ErrMissingField)
		}
	case PathEnvironment:
		if in.Value == nil {
			return fmt.Errorf("%w: value", ErrMissingField)
		}
	}
	return nil
}

// ResultText converts a result payload to the text handed to the model.
// JSON strings are unquoted; any other value is kept as compact JSON.
func ResultText(raw json.RawMessage) string {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// SendAllActions asks a freshly connected peer to register its actions.
type SendAllActions struct {
	Type string `json:"type"`
}

// NewSendAllActions returns the connection announcement.
func NewSendAllActions() SendAllActions {
	return SendAllActions{Type: TypeSendAllActions}
}

// ExecuteAction asks a peer to run one of its actions. Params holds the
// JSON-encoded parameter object.
type ExecuteAction struct {
	Type       string `json:"type"`
	ActionName string `json:"action_name"`
	ActionID   string `json:"action_id"`
	Params     string `json:"params"`
}

// NewExecuteAction builds an execute request for the correlation id.
func NewExecuteAction(name, id string, params map[string]any) (ExecuteAction, error) {
	if params == nil {
		params = map[string]any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return ExecuteAction{}, fmt.Errorf("encode params for %q: %w", name, err)
	}
	return ExecuteAction{
		Type:       TypeExecuteAction,
		ActionName: name,
		ActionID:   id,
		Params:     string(encoded),
	}, nil
}

// DecodeParams parses the Params field back into a map.
func (m ExecuteAction) DecodeParams() (map[string]any, error) {
	params := map[string]any{}
	if err := json.Unmarshal([]byte(m.Params), &params); err != nil {
		return nil, fmt.Errorf("%w: params: %v", ErrMalformed, err)
	}
	return params, nil
}

// Ack acknowledges an inbound message.
type Ack struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// OK returns a positive acknowledgement.
func OK() Ack { return Ack{OK: true} }

// Fail returns a negative acknowledgement carrying message.
func Fail(message string) Ack { return Ack{OK: false, Message: message} }

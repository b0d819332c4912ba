package agent

import (
	"github.com/flynn-ai/vox/internal/action"
	"github.com/flynn-ai/vox/internal/convo"
	"github.com/flynn-ai/vox/internal/model"
)

const (
	// EnvironmentPrefix introduces environmental context in system messages.
	EnvironmentPrefix = "environmental context: "

	// PendingPlaceholder stands in for the result of a call still running.
	PendingPlaceholder = "response is async, and is currently working. You will receive a result soon."
)

// Render converts log entries into chat messages, in log order.
//
// Tool calls attach to the closest preceding assistant message; one is
// synthesized if none exists. A call without a result in entries is
// followed by a placeholder tool message. Tool messages must directly
// follow the assistant message that requested them, so user and system
// messages logged while calls are outstanding are emitted once the block
// is complete.
func Render(entries []convo.Entry) []model.Message {
	answered := make(map[string]bool)
	for _, entry := range entries {
		if r, ok := entry.(*convo.ToolResult); ok {
			answered[r.CallID()] = true
		}
	}

	msgs := make([]model.Message, 0, len(entries))
	assistant := -1
	outstanding := 0
	var held []model.Message

	emit := func(m model.Message) {
		if outstanding > 0 {
			held = append(held, m)
			return
		}
		msgs = append(msgs, m)
	}
	release := func() {
		msgs = append(msgs, held...)
		held = nil
	}

	for _, entry := range entries {
		switch e := entry.(type) {
		case *convo.Human:
			emit(model.Message{Role: model.RoleUser, Content: e.Value()})
		case *convo.Environmental:
			emit(model.Message{Role: model.RoleSystem, Content: EnvironmentPrefix + e.Value()})
		case *convo.SystemDirective:
			emit(model.Message{Role: model.RoleSystem, Content: e.Value()})
		case *convo.ModelOutput:
			outstanding = 0
			release()
			msgs = append(msgs, model.Message{Role: model.RoleAssistant, Content: e.Value()})
			assistant = len(msgs) - 1
		case *convo.ToolCall:
			if assistant < 0 {
				release()
				msgs = append(msgs, model.Message{Role: model.RoleAssistant})
				assistant = len(msgs) - 1
			}
			msgs[assistant].ToolCalls = append(msgs[assistant].ToolCalls, model.ToolCall{
				ID:    e.ID(),
				Name:  e.Name(),
				Input: e.Params(),
			})
			if !answered[e.ID()] {
				msgs = append(msgs, model.Message{
					Role:       model.RoleTool,
					Content:    PendingPlaceholder,
					ToolCallID: e.ID(),
				})
				continue
			}
			outstanding++
		case *convo.ToolResult:
			msgs = append(msgs, model.Message{
				Role:       model.RoleTool,
				Content:    e.Value(),
				ToolCallID: e.CallID(),
			})
			if outstanding > 0 {
				outstanding--
				if outstanding == 0 {
					release()
				}
			}
		}
	}
	release()
	return msgs
}

// Tools converts an action catalog into model tool definitions.
func Tools(actions []action.Action) []model.Tool {
	if len(actions) == 0 {
		return nil
	}
	tools := make([]model.Tool, 0, len(actions))
	for _, a := range actions {
		params := a.Schema
		if params == nil {
			params = action.NewSchema().Build()
		}
		tools = append(tools, model.Tool{
			Name:        a.Name,
			Description: a.Description,
			Parameters:  params,
		})
	}
	return tools
}

package server

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/flynn-ai/vox/internal/action"
	"github.com/flynn-ai/vox/internal/convo"
	apperrors "github.com/flynn-ai/vox/internal/errors"
	"github.com/flynn-ai/vox/internal/remote"
	"github.com/flynn-ai/vox/pkg/protocol"
)

// route applies one inbound frame and returns its acknowledgement.
// Protocol faults never close the connection.
func (m *Manager) route(c *conn, data []byte, logger *zap.Logger) protocol.Ack {
	in, err := protocol.Decode(data)
	if err != nil {
		logFault(logger, apperrors.Wrap(err, apperrors.CodeProtocolMalformed, "decode frame", apperrors.CategoryProtocol))
		return protocol.Fail(protocol.MessageInvalidJSON)
	}
	if err := in.Validate(); err != nil {
		logFault(logger, apperrors.Wrap(err, apperrors.CodeProtocolMissingField, in.Path, apperrors.CategoryProtocol))
		return protocol.Fail(err.Error())
	}

	switch in.Path {
	case protocol.PathRegisterAction:
		replaced, err := m.dispatcher.Register(m.remoteAction(c, in.Spec(), logger))
		if err != nil {
			return protocol.Fail(err.Error())
		}
		logger.Info("remote action registered", zap.String("action", in.Name), zap.Bool("replaced", replaced))

	case protocol.PathRegisterEphemeral:
		actions := make([]action.Action, 0, len(in.Actions))
		for _, spec := range in.Actions {
			actions = append(actions, m.remoteAction(c, spec, logger))
		}
		id, err := m.dispatcher.CreateEphemeralGroup(actions)
		if err != nil {
			return protocol.Fail(err.Error())
		}
		logger.Info("ephemeral group registered", zap.Int("group", id), zap.Int("actions", len(actions)))

	case protocol.PathActionResult:
		if err := m.table.Resolve(in.ActionID, protocol.ResultText(in.Result)); err != nil {
			if errors.Is(err, remote.ErrUnknownCall) {
				logFault(logger, apperrors.Wrap(err, apperrors.CodeUnknownCall, in.ActionID, apperrors.CategoryProtocol))
				return protocol.Fail(protocol.MessageUnknownAction)
			}
			return protocol.Fail(err.Error())
		}

	case protocol.PathEnvironment:
		m.log.Append(convo.NewEnvironmental(*in.Value))

	case protocol.PathForceAction:
		if m.dispatcher.EnqueueForced(in.Name) {
			logger.Info("action forced", zap.String("action", in.Name))
		}

	default:
		logFault(logger, apperrors.Protocol(apperrors.CodeProtocolUnknownPath, "unknown path "+in.Path))
		return protocol.Fail(protocol.MessageUnknownType)
	}

	return protocol.OK()
}

func logFault(logger *zap.Logger, err *apperrors.AppError) {
	logger.Debug("protocol fault", zap.String("code", err.Code), zap.Error(err))
}

// remoteAction builds an action whose handler runs on the peer behind c.
func (m *Manager) remoteAction(c *conn, spec protocol.ActionSpec, logger *zap.Logger) action.Action {
	proxy := remote.NewProxy(spec.Name, c, m.table,
		remote.WithTimeout(m.cfg.ActionTimeout),
		remote.WithStats(m.stats),
		remote.WithLogger(logger))

	return action.Action{
		Name:        spec.Name,
		Description: spec.Description,
		Schema:      schemaOf(spec.Schema),
		Handler:     proxy.Handler(),
	}
}

// schemaOf decodes a peer's parameter schema. Anything that is not a JSON
// object is replaced by an empty object schema.
func schemaOf(raw json.RawMessage) map[string]any {
	schema := map[string]any{}
	if len(raw) > 0 && json.Unmarshal(raw, &schema) == nil && schema != nil {
		return schema
	}
	return action.NewSchema().Build()
}

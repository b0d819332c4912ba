package action

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flynn-ai/vox/internal/convo"
	apperrors "github.com/flynn-ai/vox/internal/errors"
	"github.com/flynn-ai/vox/internal/stats"
)

// NotFoundMessage is the result text for a call naming no known action.
const NotFoundMessage = "action not recognised, try a different function name"

// FailureMessage formats a handler failure so the model relays it to the
// user instead of silently retrying.
func FailureMessage(err error) string {
	return fmt.Sprintf("An error occurred, tell the user about it instead of retrying: %v", err)
}

// Dispatcher resolves tool calls against its Registry and runs them.
// It is safe for concurrent use.
type Dispatcher struct {
	*Registry

	stats  *stats.Collector
	logger *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStats records dispatch outcomes in c.
func WithStats(c *stats.Collector) Option {
	return func(d *Dispatcher) { d.stats = c }
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher owning a fresh Registry.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		Registry: NewRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the action named by call and returns the linked result.
// Unknown actions and handler failures are reported as result text; the
// returned result is never nil.
func (d *Dispatcher) Dispatch(ctx context.Context, call *convo.ToolCall) *convo.ToolResult {
	a, ok := d.claim(call.Name())
	if !ok {
		d.stats.RecordNotFound()
		d.logger.Info("action not found",
			zap.String("code", apperrors.CodeActionNotFound),
			zap.String("action", call.Name()),
			zap.String("call_id", call.ID()))
		return d.link(call, NotFoundMessage)
	}

	start := time.Now()
	out, err := invoke(ctx, a, call.Params())
	elapsed := time.Since(start)
	d.stats.RecordDispatch(elapsed, err != nil)

	if err != nil {
		d.logger.Warn("action failed",
			zap.String("action", a.Name),
			zap.String("call_id", call.ID()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return d.link(call, FailureMessage(err))
	}

	d.logger.Debug("action dispatched",
		zap.String("action", a.Name),
		zap.String("call_id", call.ID()),
		zap.Duration("elapsed", elapsed))
	return d.link(call, out)
}

func (d *Dispatcher) link(call *convo.ToolCall, value string) *convo.ToolResult {
	result := convo.NewToolResult(value, call.ID())
	if err := call.Answer(result); err != nil {
		// A call is dispatched at most once by its owner.
		d.logger.DPanic("tool call dispatched twice", zap.String("call_id", call.ID()), zap.Error(err))
	}
	return result
}

// invoke runs the handler, turning a panic into an error.
func invoke(ctx context.Context, a Action, params map[string]any) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = apperrors.New(apperrors.CodeActionFailed, fmt.Sprintf("action %q panicked: %v", a.Name, p), apperrors.CategoryPermanent)
		}
	}()
	return a.Handler(ctx, params)
}

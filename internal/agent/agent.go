// Package agent runs the conversation loop.
//
// Each turn renders the context log into a model request, accepts the
// response only if it calls every forced action, records it in the log
// and dispatches its tool calls. Turns repeat until the model stops
// asking for tools, then the final reply is spoken.
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flynn-ai/vox/internal/action"
	"github.com/flynn-ai/vox/internal/convo"
	apperrors "github.com/flynn-ai/vox/internal/errors"
	"github.com/flynn-ai/vox/internal/model"
	"github.com/flynn-ai/vox/internal/speech"
	"github.com/flynn-ai/vox/internal/stats"
	"github.com/flynn-ai/vox/internal/usage"
)

var (
	// ErrForcedActionsUnmet is returned when every regeneration still
	// skipped a forced action.
	ErrForcedActionsUnmet = errors.New("response did not call every forced action")

	// ErrTooManySteps is returned when a turn keeps requesting tools.
	ErrTooManySteps = errors.New("turn exceeded step limit")
)

// Response is one accepted model turn.
type Response struct {
	Text         string
	ToolCalls    []*convo.ToolCall
	FinishReason model.FinishReason
}

// ExecMode controls how AddResponse runs tool calls.
type ExecMode struct {
	// Execute dispatches the response's tool calls.
	Execute bool
	// Concurrent runs them in parallel. AddResponse still waits for all.
	Concurrent bool
}

// Config configures an Agent.
type Config struct {
	Model      model.Model
	Dispatcher *action.Dispatcher
	Log        *convo.Log
	Speech     speech.Provider // nil disables speaking

	MaxRegenerations  int
	MaxSteps          int
	ConcurrentActions bool
	MaxConcurrent     int

	Stats  *stats.Collector
	Usage  *usage.Tracker
	Logger *zap.Logger
}

// Agent drives the model over the context log.
type Agent struct {
	model      model.Model
	dispatcher *action.Dispatcher
	log        *convo.Log
	speech     speech.Provider

	maxRegenerations int
	maxSteps         int
	concurrent       bool
	maxConcurrent    int

	stats  *stats.Collector
	usage  *usage.Tracker
	logger *zap.Logger
}

// New creates an agent. A nil Log or Dispatcher is replaced by an empty one.
func New(cfg Config) *Agent {
	a := &Agent{
		model:            cfg.Model,
		dispatcher:       cfg.Dispatcher,
		log:              cfg.Log,
		speech:           cfg.Speech,
		maxRegenerations: max(cfg.MaxRegenerations, 0),
		maxSteps:         cfg.MaxSteps,
		concurrent:       cfg.ConcurrentActions,
		maxConcurrent:    cfg.MaxConcurrent,
		stats:            cfg.Stats,
		usage:            cfg.Usage,
		logger:           cfg.Logger,
	}
	if a.dispatcher == nil {
		a.dispatcher = action.NewDispatcher()
	}
	if a.log == nil {
		a.log = convo.NewLog()
	}
	if a.maxSteps <= 0 {
		a.maxSteps = 16
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// Log returns the context log.
func (a *Agent) Log() *convo.Log { return a.log }

// Dispatcher returns the action dispatcher.
func (a *Agent) Dispatcher() *action.Dispatcher { return a.dispatcher }

// AddContext appends entries to the log.
func (a *Agent) AddContext(entries ...convo.Entry) {
	a.log.Append(entries...)
}

// GenerateResponse asks the model for the next turn. A response that
// skips a forced action is discarded and regenerated, at most
// MaxRegenerations times.
func (a *Agent) GenerateResponse(ctx context.Context) (*Response, error) {
	for attempt := 0; ; attempt++ {
		req := &model.Request{
			Messages: Render(a.log.Entries()),
			Tools:    Tools(a.dispatcher.Catalog()),
		}

		out, err := a.model.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		a.usage.Record(out.Model, out.TokensUsed)
		resp := fromModel(out)

		if a.dispatcher.MeetsForcedCriteria(resp.ToolCalls) {
			return resp, nil
		}

		forced := a.dispatcher.Forced()
		if attempt >= a.maxRegenerations {
			a.logger.Warn("forced actions still unmet", zap.Strings("forced", forced), zap.Int("attempts", attempt+1))
			return nil, apperrors.Wrap(ErrForcedActionsUnmet, apperrors.CodeForcedActionsUnmet,
				fmt.Sprintf("forced actions %v not called after %d attempts", forced, attempt+1),
				apperrors.CategoryPermanent)
		}
		a.stats.RecordRegeneration()
		a.logger.Info("regenerating response", zap.Strings("forced", forced), zap.Int("attempt", attempt+1))
	}
}

// AddResponse records resp in the log and, if mode.Execute is set,
// dispatches its tool calls and appends their results. It returns once
// every call has a result.
func (a *Agent) AddResponse(ctx context.Context, resp *Response, mode ExecMode) error {
	entries := make([]convo.Entry, 0, len(resp.ToolCalls)+1)
	entries = append(entries, convo.NewModelOutput(resp.Text))
	for _, call := range resp.ToolCalls {
		entries = append(entries, call)
	}
	a.log.Append(entries...)

	if !mode.Execute || len(resp.ToolCalls) == 0 {
		return nil
	}

	if !mode.Concurrent {
		for _, call := range resp.ToolCalls {
			a.log.Append(a.dispatcher.Dispatch(ctx, call))
		}
		return ctx.Err()
	}

	var g errgroup.Group
	if a.maxConcurrent > 0 {
		g.SetLimit(a.maxConcurrent)
	}
	for _, call := range resp.ToolCalls {
		g.Go(func() error {
			a.log.Append(a.dispatcher.Dispatch(ctx, call))
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// Turn handles one human utterance: it generates and executes until the
// model stops requesting tools, then speaks the final reply.
func (a *Agent) Turn(ctx context.Context, utterance string) error {
	a.AddContext(convo.NewHuman(utterance))

	mode := ExecMode{Execute: true, Concurrent: a.concurrent}
	for step := 0; ; step++ {
		if step >= a.maxSteps {
			return fmt.Errorf("%w (%d)", ErrTooManySteps, a.maxSteps)
		}

		resp, err := a.GenerateResponse(ctx)
		if err != nil {
			return err
		}
		if err := a.AddResponse(ctx, resp, mode); err != nil {
			return err
		}
		a.logger.Debug("turn step",
			zap.Int("step", step),
			zap.String("finish", string(resp.FinishReason)),
			zap.Int("tool_calls", len(resp.ToolCalls)))

		if resp.FinishReason == model.FinishStop {
			break
		}
	}

	return a.SpeakRecentResponse(ctx)
}

// SpeakRecentResponse speaks the most recent model output. An empty
// latest output means the model had nothing to say; nothing is spoken.
func (a *Agent) SpeakRecentResponse(ctx context.Context) error {
	if a.speech == nil {
		return nil
	}
	out, ok := a.log.LastModelOutput()
	if !ok || out.Value() == "" {
		return nil
	}
	return a.speech.Speak(ctx, out.Value())
}

func fromModel(out *model.Response) *Response {
	resp := &Response{
		Text:         out.Text,
		FinishReason: out.FinishReason,
	}
	for _, tc := range out.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, convo.NewToolCall(tc.Name, tc.Input))
	}
	return resp
}

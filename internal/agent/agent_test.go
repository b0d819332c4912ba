package agent

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/flynn-ai/vox/internal/action"
	"github.com/flynn-ai/vox/internal/convo"
	apperrors "github.com/flynn-ai/vox/internal/errors"
	"github.com/flynn-ai/vox/internal/model"
	"github.com/flynn-ai/vox/internal/speech"
	"github.com/flynn-ai/vox/internal/stats"
	"github.com/flynn-ai/vox/internal/usage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted replays canned responses and records the requests it saw.
type scripted struct {
	mu        sync.Mutex
	responses []*model.Response
	requests  []*model.Request
}

func (s *scripted) Generate(_ context.Context, req *model.Request) (*model.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scripted) IsAvailable() bool { return true }
func (s *scripted) Name() string      { return "scripted" }

func stop(text string) *model.Response {
	return &model.Response{Text: text, FinishReason: model.FinishStop, Model: "scripted", TokensUsed: 10}
}

func calling(names ...string) *model.Response {
	resp := &model.Response{FinishReason: model.FinishToolCalls}
	for _, n := range names {
		resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{ID: "api-" + n, Name: n, Input: map[string]any{}})
	}
	return resp
}

func constant(name, out string) action.Action {
	return action.Action{
		Name:        name,
		Description: "returns " + out,
		Handler:     func(context.Context, map[string]any) (string, error) { return out, nil },
	}
}

func TestRenderCoversEveryEntryKind(t *testing.T) {
	call := convo.NewToolCall("lamp", map[string]any{"on": true})
	pending := convo.NewToolCall("slow", nil)
	result := convo.NewToolResult("lamp on", call.ID())
	require.NoError(t, call.Answer(result))

	msgs := Render([]convo.Entry{
		convo.NewSystemDirective("you are vox"),
		convo.NewHuman("turn on the lamp"),
		convo.NewEnvironmental("it is dark"),
		convo.NewModelOutput("on it"),
		call,
		pending,
		result,
	})

	require.Len(t, msgs, 6)
	assert.Equal(t, model.Message{Role: model.RoleSystem, Content: "you are vox"}, msgs[0])
	assert.Equal(t, model.Message{Role: model.RoleUser, Content: "turn on the lamp"}, msgs[1])
	assert.Equal(t, model.Message{Role: model.RoleSystem, Content: "environmental context: it is dark"}, msgs[2])

	assert.Equal(t, model.RoleAssistant, msgs[3].Role)
	assert.Equal(t, "on it", msgs[3].Content)
	require.Len(t, msgs[3].ToolCalls, 2)
	assert.Equal(t, call.ID(), msgs[3].ToolCalls[0].ID)
	assert.Equal(t, "lamp", msgs[3].ToolCalls[0].Name)
	assert.Equal(t, pending.ID(), msgs[3].ToolCalls[1].ID)

	// Only the pending call gets a placeholder.
	assert.Equal(t, model.Message{Role: model.RoleTool, Content: PendingPlaceholder, ToolCallID: pending.ID()}, msgs[4])
	assert.Equal(t, model.Message{Role: model.RoleTool, Content: "lamp on", ToolCallID: call.ID()}, msgs[5])
}

func TestRenderHoldsContextUntilToolBlockCloses(t *testing.T) {
	answered := convo.NewToolCall("door", nil)
	running := convo.NewToolCall("camera", nil)
	result := convo.NewToolResult("door locked", answered.ID())
	require.NoError(t, answered.Answer(result))

	msgs := Render([]convo.Entry{
		convo.NewHuman("lock up"),
		convo.NewModelOutput(""),
		answered,
		running,
		convo.NewEnvironmental("door opened"),
		result,
		convo.NewHuman("thanks"),
	})

	roles := make([]model.Role, 0, len(msgs))
	for _, m := range msgs {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []model.Role{
		model.RoleUser,
		model.RoleAssistant,
		model.RoleTool,
		model.RoleTool,
		model.RoleSystem,
		model.RoleUser,
	}, roles)
	assert.Equal(t, PendingPlaceholder, msgs[2].Content)
	assert.Equal(t, answered.ID(), msgs[3].ToolCallID)
	assert.Equal(t, "environmental context: door opened", msgs[4].Content)
}

func TestRenderTreatsUnloggedResultAsPending(t *testing.T) {
	call := convo.NewToolCall("lamp", nil)
	require.NoError(t, call.Answer(convo.NewToolResult("on", call.ID())))

	msgs := Render([]convo.Entry{convo.NewModelOutput("ok"), call, convo.NewEnvironmental("noise")})

	require.Len(t, msgs, 3)
	assert.Equal(t, PendingPlaceholder, msgs[1].Content)
	assert.Equal(t, model.RoleSystem, msgs[2].Role)
}

func TestRenderSynthesizesAssistant(t *testing.T) {
	call := convo.NewToolCall("x", nil)
	msgs := Render([]convo.Entry{convo.NewHuman("hi"), call})

	require.Len(t, msgs, 3)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Empty(t, msgs[1].Content)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, PendingPlaceholder, msgs[2].Content)
}

func TestToolsIncludesEphemeral(t *testing.T) {
	d := action.NewDispatcher()
	_, _ = d.Register(constant("b", "b"))
	_, _ = d.CreateEphemeralGroup([]action.Action{constant("a", "a")})

	tools := Tools(d.Catalog())
	require.Len(t, tools, 2)
	assert.Equal(t, "a", tools[0].Name)
	assert.Equal(t, "b", tools[1].Name)
	assert.Equal(t, "object", tools[0].Parameters.(map[string]any)["type"])
	assert.Nil(t, Tools(nil))
}

func TestGenerateResponseRegeneratesForForcedActions(t *testing.T) {
	m := &scripted{responses: []*model.Response{stop("nope"), calling("greet")}}
	collector := stats.NewCollector()
	tracker := usage.NewTracker()
	a := New(Config{Model: m, MaxRegenerations: 3, Stats: collector, Usage: tracker})
	_, _ = a.Dispatcher().Register(constant("greet", "hello"))
	a.Dispatcher().EnqueueForced("greet")

	resp, err := a.GenerateResponse(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "greet", resp.ToolCalls[0].Name())
	assert.Len(t, m.requests, 2)
	assert.Equal(t, int64(1), collector.Collect().Regenerations)
	assert.Zero(t, a.Log().Len(), "rejected responses never reach the log")
	assert.Equal(t, 2, tracker.Snapshot().Daily.Requests, "rejected responses still count as usage")
	assert.Equal(t, 10, tracker.Snapshot().ByModel["scripted"])
}

func TestGenerateResponseGivesUp(t *testing.T) {
	m := &scripted{responses: []*model.Response{stop("a"), stop("b"), stop("c")}}
	a := New(Config{Model: m, MaxRegenerations: 2})
	a.Dispatcher().EnqueueForced("greet")

	_, err := a.GenerateResponse(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForcedActionsUnmet)
	assert.Equal(t, apperrors.CodeForcedActionsUnmet, apperrors.GetCode(err))
	assert.Len(t, m.requests, 3)
	assert.Equal(t, []string{"greet"}, a.Dispatcher().Forced())
}

func TestGenerateResponseSendsLogAndCatalog(t *testing.T) {
	m := &scripted{responses: []*model.Response{stop("hi")}}
	a := New(Config{Model: m})
	_, _ = a.Dispatcher().Register(constant("lamp", "on"))
	a.AddContext(convo.NewHuman("hello"))

	_, err := a.GenerateResponse(context.Background())
	require.NoError(t, err)

	req := m.requests[0]
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "hello", req.Messages[0].Content)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "lamp", req.Tools[0].Name)
}

func TestGenerateResponseModelError(t *testing.T) {
	a := New(Config{Model: &scripted{}})
	_, err := a.GenerateResponse(context.Background())
	assert.EqualError(t, err, "script exhausted")
}

func TestAddResponseWithoutExecution(t *testing.T) {
	a := New(Config{Model: &scripted{}})
	_, _ = a.Dispatcher().Register(constant("x", "x"))
	call := convo.NewToolCall("x", nil)

	require.NoError(t, a.AddResponse(context.Background(), &Response{Text: "t", ToolCalls: []*convo.ToolCall{call}}, ExecMode{}))

	entries := a.Log().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, convo.KindModelOutput, entries[0].Kind())
	assert.Same(t, call, entries[1])
	assert.True(t, call.Pending())
}

func TestAddResponseSequential(t *testing.T) {
	a := New(Config{Model: &scripted{}})
	_, _ = a.Dispatcher().Register(constant("a", "ra"))
	_, _ = a.Dispatcher().Register(constant("b", "rb"))
	calls := []*convo.ToolCall{convo.NewToolCall("a", nil), convo.NewToolCall("b", nil)}

	require.NoError(t, a.AddResponse(context.Background(), &Response{ToolCalls: calls}, ExecMode{Execute: true}))

	entries := a.Log().Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, "ra", entries[3].Value())
	assert.Equal(t, "rb", entries[4].Value())
	for _, c := range calls {
		assert.False(t, c.Pending())
	}
}

func TestAddResponseConcurrentJoins(t *testing.T) {
	a := New(Config{Model: &scripted{}, MaxConcurrent: 4})

	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	blocking := func(name string) action.Action {
		return action.Action{Name: name, Handler: func(context.Context, map[string]any) (string, error) {
			started.Done()
			<-release
			return name + " done", nil
		}}
	}
	_, _ = a.Dispatcher().Register(blocking("left"))
	_, _ = a.Dispatcher().Register(blocking("right"))

	go func() {
		// Both handlers must be running at once before either is released.
		started.Wait()
		close(release)
	}()

	calls := []*convo.ToolCall{convo.NewToolCall("left", nil), convo.NewToolCall("right", nil)}
	done := make(chan error, 1)
	go func() { done <- a.AddResponse(context.Background(), &Response{ToolCalls: calls}, ExecMode{Execute: true, Concurrent: true}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent execution did not join")
	}

	values := map[string]bool{}
	for _, e := range a.Log().Entries() {
		if e.Kind() == convo.KindToolResult {
			values[e.Value()] = true
		}
	}
	assert.Equal(t, map[string]bool{"left done": true, "right done": true}, values)
}

func TestTurnLoopsUntilStopThenSpeaks(t *testing.T) {
	var out bytes.Buffer
	var printed bytes.Buffer
	m := &scripted{responses: []*model.Response{
		calling("print"),
		stop("I printed it."),
	}}
	a := New(Config{Model: m, Speech: speech.NewConsole(&out)})
	_, _ = a.Dispatcher().Register(action.Print(&printed))

	m.responses[0].ToolCalls[0].Input = map[string]any{"output": "hello world"}

	require.NoError(t, a.Turn(context.Background(), "print hello world"))

	assert.Equal(t, "hello world\n", printed.String())
	assert.Equal(t, "I printed it.\n", out.String())

	kinds := []convo.Kind{}
	for _, e := range a.Log().Entries() {
		kinds = append(kinds, e.Kind())
	}
	assert.Equal(t, []convo.Kind{
		convo.KindHuman,
		convo.KindModelOutput,
		convo.KindToolCall,
		convo.KindToolResult,
		convo.KindModelOutput,
	}, kinds)

	// The second request saw the tool result, not a placeholder.
	second := m.requests[1].Messages
	assert.Equal(t, "OK", second[len(second)-1].Content)
}

func TestTurnStepLimit(t *testing.T) {
	m := &scripted{responses: []*model.Response{calling("x"), calling("x"), calling("x")}}
	a := New(Config{Model: m, MaxSteps: 2})
	_, _ = a.Dispatcher().Register(constant("x", "again"))

	err := a.Turn(context.Background(), "loop forever")
	assert.ErrorIs(t, err, ErrTooManySteps)
}

func TestSpeakRecentResponseSkipsEmpty(t *testing.T) {
	var out bytes.Buffer
	a := New(Config{Model: &scripted{}, Speech: speech.NewConsole(&out)})

	require.NoError(t, a.SpeakRecentResponse(context.Background()))
	a.AddContext(convo.NewModelOutput("earlier"), convo.NewModelOutput(""))
	require.NoError(t, a.SpeakRecentResponse(context.Background()))
	assert.Empty(t, out.String())

	a.AddContext(convo.NewModelOutput("latest"))
	require.NoError(t, a.SpeakRecentResponse(context.Background()))
	assert.Equal(t, "latest\n", out.String())
}

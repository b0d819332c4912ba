package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/vox/internal/convo"
)

func echo(name string) Action {
	return Action{
		Name:        name,
		Description: "echoes " + name,
		Schema:      NewSchema().AddParam("text", "string", "text to echo", false).Build(),
		Handler: func(_ context.Context, _ map[string]any) (string, error) {
			return name, nil
		},
	}
}

func calls(names ...string) []*convo.ToolCall {
	out := make([]*convo.ToolCall, 0, len(names))
	for _, n := range names {
		out = append(out, convo.NewToolCall(n, nil))
	}
	return out
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(Action{Handler: echo("x").Handler})
	assert.ErrorIs(t, err, ErrNameEmpty)

	_, err = r.Register(Action{Name: "x"})
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = r.CreateEphemeralGroup([]Action{echo("ok"), {Name: "broken"}})
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestRegisterOverwriteAndUnregister(t *testing.T) {
	r := NewRegistry()

	replaced, err := r.Register(echo("a"))
	require.NoError(t, err)
	assert.False(t, replaced)

	replaced, err = r.Register(echo("a"))
	require.NoError(t, err)
	assert.True(t, replaced)

	assert.True(t, r.Unregister("a"))
	assert.False(t, r.Unregister("a"))
	_, ok := r.Lookup("a")
	assert.False(t, ok)
}

func TestEphemeralGroupIDsAreSequential(t *testing.T) {
	r := NewRegistry()

	first, err := r.CreateEphemeralGroup([]Action{echo("x")})
	require.NoError(t, err)
	second, err := r.CreateEphemeralGroup([]Action{echo("y")})
	require.NoError(t, err)

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.True(t, r.HasEphemeralGroup(first))

	assert.True(t, r.DiscardEphemeralGroup(first))
	assert.False(t, r.HasEphemeralGroup(first))

	third, err := r.CreateEphemeralGroup(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, third, "ids are never reused")
}

func TestClaimConsumesWholeGroup(t *testing.T) {
	r := NewRegistry()
	id, err := r.CreateEphemeralGroup([]Action{echo("x"), echo("y")})
	require.NoError(t, err)

	a, ok := r.claim("x")
	require.True(t, ok)
	assert.Equal(t, "x", a.Name)
	assert.False(t, r.HasEphemeralGroup(id))

	_, ok = r.claim("y")
	assert.False(t, ok)
}

func TestClaimPrefersPermanent(t *testing.T) {
	r := NewRegistry()
	id, err := r.CreateEphemeralGroup([]Action{echo("shared")})
	require.NoError(t, err)
	_, err = r.Register(echo("shared"))
	require.NoError(t, err)

	_, ok := r.claim("shared")
	require.True(t, ok)
	assert.True(t, r.HasEphemeralGroup(id), "group untouched when a permanent action matched")
}

func TestClaimScansLowestGroupFirst(t *testing.T) {
	r := NewRegistry()
	low, _ := r.CreateEphemeralGroup([]Action{echo("pick")})
	high, _ := r.CreateEphemeralGroup([]Action{echo("pick")})

	_, ok := r.claim("pick")
	require.True(t, ok)
	assert.False(t, r.HasEphemeralGroup(low))
	assert.True(t, r.HasEphemeralGroup(high))
}

func TestEnqueueForcedIsIdempotent(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.EnqueueForced("a"))
	assert.True(t, r.EnqueueForced("b"))
	assert.False(t, r.EnqueueForced("a"))
	assert.Equal(t, []string{"a", "b"}, r.Forced())
}

func TestMeetsForcedCriteria(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.MeetsForcedCriteria(nil), "empty queue accepts anything")

	r.EnqueueForced("a")
	r.EnqueueForced("b")

	assert.False(t, r.MeetsForcedCriteria(nil))
	assert.False(t, r.MeetsForcedCriteria(calls("a")))
	assert.True(t, r.MeetsForcedCriteria(calls("a", "b")))
	assert.True(t, r.MeetsForcedCriteria(calls("b", "c", "a")))
	assert.Equal(t, []string{"a", "b"}, r.Forced(), "checking never drains the queue")
}

func TestCatalog(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register(echo("zeta"))
	_, _ = r.Register(echo("alpha"))
	_, _ = r.CreateEphemeralGroup([]Action{echo("beta"), echo("alpha")})

	names := make([]string, 0)
	for _, a := range r.Catalog() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, names)

	alpha, ok := r.Lookup("alpha")
	require.True(t, ok)
	assert.Equal(t, "echoes alpha", alpha.Description)
}

func TestSchemaBuilder(t *testing.T) {
	schema := NewSchema().
		AddParam("output", "string", "the console output", true).
		AddParam("repeat", "integer", "times to print", false).
		Build()

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"output"}, schema["required"])
	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "output")
	assert.Equal(t, "integer", props["repeat"].(map[string]any)["type"])
}

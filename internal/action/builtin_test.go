package action

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/vox/internal/convo"
)

func TestPrintAction(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher()
	_, err := d.Register(Print(&buf))
	require.NoError(t, err)

	result := d.Dispatch(context.Background(), convo.NewToolCall("print", map[string]any{"output": "hello"}))
	assert.Equal(t, "OK", result.Value())
	assert.Equal(t, "hello\n", buf.String())

	result = d.Dispatch(context.Background(), convo.NewToolCall("print", map[string]any{"output": 3}))
	assert.Contains(t, result.Value(), "An error occurred")
	assert.Contains(t, result.Value(), "output")
}

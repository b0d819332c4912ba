package transcript

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/vox/internal/convo"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "transcript.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreJournalsLog(t *testing.T) {
	s := openTemp(t)
	log := convo.NewLog(convo.WithSink(s))

	call := convo.NewToolCall("lamp", map[string]any{"on": true})
	result := convo.NewToolResult("lamp on", call.ID())
	log.Append(
		convo.NewHuman("turn on the lamp"),
		convo.NewModelOutput(""),
		call,
		result,
	)

	rows, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, convo.KindHuman, rows[0].Kind)
	assert.Equal(t, "turn on the lamp", rows[0].Value)

	assert.Equal(t, convo.KindToolCall, rows[2].Kind)
	assert.JSONEq(t, `{"on":true}`, rows[2].ParamsJSON)
	assert.Equal(t, result.ID(), rows[2].ResponseID)

	assert.Equal(t, convo.KindToolResult, rows[3].Kind)
	assert.Equal(t, call.ID(), rows[3].CallID)

	for i := 1; i < len(rows); i++ {
		assert.Greater(t, rows[i].Seq, rows[i-1].Seq)
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTemp(t)
	for _, v := range []string{"one", "two", "three"} {
		require.NoError(t, s.Record(convo.NewHuman(v)))
	}

	rows, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "two", rows[0].Value)
	assert.Equal(t, "three", rows[1].Value)
}

func TestRecordDuplicateFails(t *testing.T) {
	s := openTemp(t)
	e := convo.NewEnvironmental("door opened")
	require.NoError(t, s.Record(e))
	assert.Error(t, s.Record(e))
}

func TestIsBusy(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	assert.True(t, isBusy(busy))
	assert.True(t, isBusy(fmt.Errorf("insert entry x: %w", sqlite3.Error{Code: sqlite3.ErrLocked})))
	assert.False(t, isBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, isBusy(errors.New("disk on fire")))
}

func TestRecordDoesNotRetryConstraintFailure(t *testing.T) {
	s := openTemp(t)
	e := convo.NewHuman("once")
	require.NoError(t, s.Record(e))

	err := s.Record(e)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "max retries exceeded")
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(convo.NewSystemDirective("you are vox")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	rows, err := s.Recent(5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, convo.KindSystemDirective, rows[0].Kind)
}

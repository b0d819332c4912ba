package usage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordAccumulates(t *testing.T) {
	tr := NewTracker()
	tr.Record("gpt-4o-mini", 100)
	tr.Record("gpt-4o-mini", 50)
	tr.Record("local", 7)

	snap := tr.Snapshot()
	assert.Equal(t, 3, snap.Daily.Requests)
	assert.Equal(t, 157, snap.Daily.Tokens)
	assert.Equal(t, 157, snap.Monthly.Tokens)
	assert.Equal(t, map[string]int{"gpt-4o-mini": 150, "local": 7}, snap.ByModel)
}

func TestRolloverResetsPeriods(t *testing.T) {
	clock := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)
	tr := newTracker(func() time.Time { return clock })
	tr.Record("m", 10)

	clock = clock.Add(2 * time.Hour)
	tr.Record("m", 5)

	snap := tr.Snapshot()
	assert.Equal(t, "2026-02-01", snap.Daily.Key)
	assert.Equal(t, 5, snap.Daily.Tokens)
	assert.Equal(t, "2026-02", snap.Monthly.Key)
	assert.Equal(t, 1, snap.Monthly.Requests)
	assert.Equal(t, 15, snap.ByModel["m"])
}

func TestNilTracker(t *testing.T) {
	var tr *Tracker
	tr.Record("m", 1)
	assert.Empty(t, tr.Snapshot().ByModel)
}

func TestConcurrentRecord(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record("m", 2)
		}()
	}
	wg.Wait()
	assert.Equal(t, 40, tr.Snapshot().Daily.Tokens)
}

// Package usage tracks model token usage per day and per month.
package usage

import (
	"sync"
	"time"
)

// Tracker accumulates model requests and tokens. It is safe for
// concurrent use; a nil Tracker ignores records.
type Tracker struct {
	mu      sync.Mutex
	now     func() time.Time
	daily   Period
	monthly Period
	byModel map[string]int
}

// Period is the usage inside one calendar day or month.
type Period struct {
	Key      string `json:"key"`
	Requests int    `json:"requests"`
	Tokens   int    `json:"tokens"`
}

// Snapshot is the tracker state at a point in time.
type Snapshot struct {
	Daily   Period         `json:"daily"`
	Monthly Period         `json:"monthly"`
	ByModel map[string]int `json:"by_model"`
}

// NewTracker creates a tracker keyed by the local clock.
func NewTracker() *Tracker {
	return newTracker(time.Now)
}

func newTracker(now func() time.Time) *Tracker {
	t := &Tracker{now: now, byModel: make(map[string]int)}
	t.rollover(now())
	return t
}

// Record adds one model request that consumed tokens.
func (t *Tracker) Record(model string, tokens int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover(t.now())
	t.daily.Requests++
	t.daily.Tokens += tokens
	t.monthly.Requests++
	t.monthly.Tokens += tokens
	t.byModel[model] += tokens
}

// Snapshot returns current usage.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{ByModel: map[string]int{}}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover(t.now())
	byModel := make(map[string]int, len(t.byModel))
	for k, v := range t.byModel {
		byModel[k] = v
	}
	return Snapshot{Daily: t.daily, Monthly: t.monthly, ByModel: byModel}
}

// rollover resets periods whose calendar key changed. Must hold mu.
func (t *Tracker) rollover(at time.Time) {
	if day := at.Format("2006-01-02"); t.daily.Key != day {
		t.daily = Period{Key: day}
	}
	if month := at.Format("2006-01"); t.monthly.Key != month {
		t.monthly = Period{Key: month}
	}
}

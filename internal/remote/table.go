// Package remote turns actions offered by a connected peer into local
// handlers. Invoking one sends an execute request to the peer and waits
// for the matching result message.
package remote

import (
	"errors"
	"sync"
)

// ErrUnknownCall is returned when a result names no outstanding call.
// This covers ids that were never issued and ids that already resolved
// or timed out.
var ErrUnknownCall = errors.New("unknown action call")

// Table tracks outstanding remote calls by correlation id.
//
// Each id resolves at most once. Removal from the table and delivery of
// the result happen under the same lock, so whichever of Resolve or a
// waiter's cancel gets there first owns the slot.
type Table struct {
	mu      sync.Mutex
	pending map[string]chan string
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{pending: make(map[string]chan string)}
}

// open registers id and returns the channel its result will arrive on.
func (t *Table) open(id string) <-chan string {
	ch := make(chan string, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	return ch
}

// cancel removes id. It reports false when the id was already resolved,
// in which case the result is waiting on the call's channel.
func (t *Table) cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id]; !ok {
		return false
	}
	delete(t.pending, id)
	return true
}

// Resolve delivers result to the call waiting on id.
func (t *Table) Resolve(id, result string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.pending[id]
	if !ok {
		return ErrUnknownCall
	}
	delete(t.pending, id)
	ch <- result
	return nil
}

// Has reports whether id is outstanding.
func (t *Table) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[id]
	return ok
}

// Len returns the number of outstanding calls.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

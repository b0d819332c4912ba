package convo

import (
	"sync"

	"go.uber.org/zap"
)

// Sink receives every entry appended to a Log, in append order.
type Sink interface {
	Record(entry Entry) error
}

// Log is an append-only, concurrency-safe conversation record.
//
// Entries reach the sink in append order, outside the lock that guards
// the entries, so readers never wait on sink I/O.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	unsent   []Entry
	draining bool
	sink     Sink
	logger   *zap.Logger
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithSink writes appended entries through to s.
func WithSink(s Sink) LogOption {
	return func(l *Log) { l.sink = s }
}

// WithLogger sets the logger used to report sink failures.
func WithLogger(logger *zap.Logger) LogOption {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLog creates an empty log.
func NewLog(opts ...LogOption) *Log {
	l := &Log{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append adds entries atomically, in the given order.
// Sink failures are logged and do not reject the entry.
func (l *Log) Append(entries ...Entry) {
	l.mu.Lock()
	for _, e := range entries {
		if e == nil {
			continue
		}
		l.entries = append(l.entries, e)
		if l.sink != nil {
			l.unsent = append(l.unsent, e)
		}
	}
	drain := len(l.unsent) > 0 && !l.draining
	if drain {
		l.draining = true
	}
	l.mu.Unlock()

	if drain {
		l.flush()
	}
}

// flush writes queued entries to the sink until the queue is empty.
// Only one goroutine flushes at a time.
func (l *Log) flush() {
	for {
		l.mu.Lock()
		batch := l.unsent
		l.unsent = nil
		if len(batch) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()

		for _, e := range batch {
			if err := l.sink.Record(e); err != nil {
				l.logger.Warn("transcript write failed",
					zap.String("entry_id", e.ID()),
					zap.String("kind", string(e.Kind())),
					zap.Error(err))
			}
		}
	}
}

// Entries returns a snapshot of the log.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// LastModelOutput returns the most recent model output, if any.
func (l *Log) LastModelOutput() (*ModelOutput, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if out, ok := l.entries[i].(*ModelOutput); ok {
			return out, true
		}
	}
	return nil, false
}

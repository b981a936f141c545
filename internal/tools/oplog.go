package tools

import (
	"sync"
	"time"
)

// DefaultIdempotencyWindow is how long a recorded operation result can be
// replayed.
const DefaultIdempotencyWindow = 10 * time.Minute

type opEntry struct {
	result  interface{}
	expires time.Time
}

// OpLog remembers write results by operation_id so a retried request
// replays the prior outcome instead of re-executing the write.
type OpLog struct {
	window time.Duration

	mu      sync.Mutex
	entries map[string]opEntry
}

// NewOpLog creates an idempotency log. A non-positive window selects the
// default.
func NewOpLog(window time.Duration) *OpLog {
	if window <= 0 {
		window = DefaultIdempotencyWindow
	}
	return &OpLog{window: window, entries: make(map[string]opEntry)}
}

// Lookup returns the recorded result for id, if still inside the window.
func (l *OpLog) Lookup(id string) (interface{}, bool) {
	if id == "" {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(l.entries, id)
		return nil, false
	}
	return entry.result, true
}

// Record stores the result for id and prunes expired entries.
func (l *OpLog) Record(id string, result interface{}) {
	if id == "" {
		return
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.entries {
		if now.After(entry.expires) {
			delete(l.entries, key)
		}
	}
	l.entries[id] = opEntry{result: result, expires: now.Add(l.window)}
}

// Len reports how many operations are currently recorded.
func (l *OpLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

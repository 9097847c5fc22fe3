// Package logring keeps the most recent worker output lines in memory.
package logring

import (
	"sync"
	"time"

	"github.com/modoterra/pricewatch/pkg/core"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 1000

// Ring is a fixed-capacity FIFO of log lines. Once full, every append evicts
// the oldest line. It is safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	lines []core.LogLine
	head  int // index of the oldest line
	n     int
	subs  []chan core.LogLine
	now   func() time.Time
}

// New creates a ring holding at most capacity lines.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		lines: make([]core.LogLine, capacity),
		now:   time.Now,
	}
}

// Append timestamps text and stores it, evicting the oldest line when full.
func (r *Ring) Append(workerID string, stream core.Stream, text string) core.LogLine {
	r.mu.Lock()
	entry := core.LogLine{
		Time:     r.now(),
		WorkerID: workerID,
		Stream:   stream,
		Line:     text,
	}
	r.push(entry)
	r.mu.Unlock()
	return entry
}

// Push stores an already built line.
func (r *Ring) Push(entry core.LogLine) {
	r.mu.Lock()
	r.push(entry)
	r.mu.Unlock()
}

func (r *Ring) push(entry core.LogLine) {
	c := len(r.lines)
	if r.n == c {
		r.lines[r.head] = entry
		r.head = (r.head + 1) % c
	} else {
		r.lines[(r.head+r.n)%c] = entry
		r.n++
	}
	for _, ch := range r.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Snapshot returns a copy of the stored lines, oldest first.
func (r *Ring) Snapshot() []core.LogLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.LogLine, r.n)
	c := len(r.lines)
	for i := 0; i < r.n; i++ {
		out[i] = r.lines[(r.head+i)%c]
	}
	return out
}

// Len returns the number of stored lines.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap returns the maximum number of stored lines.
func (r *Ring) Cap() int {
	return len(r.lines)
}

// Subscribe returns a channel receiving every line appended from now on.
// Lines are dropped for a subscriber whose buffer is full.
func (r *Ring) Subscribe(buffer int) <-chan core.LogLine {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan core.LogLine, buffer)
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (r *Ring) Unsubscribe(ch <-chan core.LogLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s == ch {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			close(s)
			return
		}
	}
}

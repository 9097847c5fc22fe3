package daemon

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/modoterra/pricewatch/pkg/core"
	"github.com/modoterra/pricewatch/pkg/transport/uds"
)

// StatusLoop snapshots the supervisor's workers every interval and emits
// delta events.
type StatusLoop struct {
	daemon   *Daemon
	interval time.Duration
	logger   *slog.Logger
}

// NewStatusLoop creates a status loop for the given daemon.
func NewStatusLoop(d *Daemon, interval time.Duration, logger *slog.Logger) *StatusLoop {
	return &StatusLoop{daemon: d, interval: interval, logger: logger}
}

// Run starts the loop. Blocks until ctx is cancelled.
func (sl *StatusLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(sl.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sl.tick()
		}
	}
}

func (sl *StatusLoop) tick() {
	newWorkers := make(map[string]core.Worker)
	for _, w := range sl.daemon.supervisor.Workers() {
		newWorkers[w.ID] = w
	}

	sl.daemon.mu.Lock()
	oldWorkers := sl.daemon.workers
	sl.daemon.workers = newWorkers
	sl.daemon.mu.Unlock()

	delta := computeDelta(oldWorkers, newWorkers)
	if delta.HasChanges() {
		evt, err := uds.NewEvent(uds.EventWorkersDelta, delta)
		if err != nil {
			sl.logger.Error("encode workers delta", "err", err)
			return
		}
		sl.daemon.Server().Broadcast(evt)
	}
}

// Delta represents changes between status snapshots.
type Delta struct {
	Added   []core.Worker `json:"added,omitempty"`
	Updated []core.Worker `json:"updated,omitempty"`
	Removed []string      `json:"removed,omitempty"`
}

// HasChanges returns true if the delta contains any changes.
func (d Delta) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Updated) > 0 || len(d.Removed) > 0
}

func computeDelta(old, new map[string]core.Worker) Delta {
	var d Delta

	for id, w := range new {
		prev, existed := old[id]
		if !existed {
			d.Added = append(d.Added, w)
		} else if workerChanged(prev, w) {
			d.Updated = append(d.Updated, w)
		}
	}

	for id := range old {
		if _, exists := new[id]; !exists {
			d.Removed = append(d.Removed, id)
		}
	}

	byID := func(a, b core.Worker) int { return strings.Compare(a.ID, b.ID) }
	slices.SortFunc(d.Added, byID)
	slices.SortFunc(d.Updated, byID)
	slices.Sort(d.Removed)
	return d
}

// workerChanged ignores uptime, which moves on every snapshot.
func workerChanged(a, b core.Worker) bool {
	return a.Status != b.Status ||
		a.PID != b.PID ||
		a.MemBytes != b.MemBytes ||
		a.Restarts != b.Restarts ||
		!equalPtr(a.ExitCode, b.ExitCode) ||
		!equalTimePtr(a.RestartAt, b.RestartAt)
}

func equalPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

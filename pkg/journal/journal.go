// Package journal mirrors worker log lines into the systemd journal.
package journal

import (
	"context"
	"log/slog"

	sdjournal "github.com/coreos/go-systemd/v22/journal"

	"github.com/modoterra/pricewatch/pkg/core"
)

// Identifier is the SYSLOG_IDENTIFIER of mirrored lines.
const Identifier = "pricewatch-worker"

// SendFunc writes one journal entry. The go-systemd Send function satisfies it.
type SendFunc func(message string, priority sdjournal.Priority, vars map[string]string) error

// Enabled reports whether the local journal socket is reachable.
func Enabled() bool {
	return sdjournal.Enabled()
}

// Priority maps a line's stream to a journal priority.
func Priority(line core.LogLine) sdjournal.Priority {
	switch line.Severity() {
	case core.SeverityError:
		return sdjournal.PriErr
	case core.SeverityNotice:
		return sdjournal.PriNotice
	default:
		return sdjournal.PriInfo
	}
}

// Fields returns the structured fields attached to a mirrored line.
func Fields(line core.LogLine) map[string]string {
	vars := map[string]string{
		"SYSLOG_IDENTIFIER": Identifier,
		"PRICEWATCH_STREAM": string(line.Stream),
	}
	if line.WorkerID != "" {
		vars["PRICEWATCH_WORKER_ID"] = line.WorkerID
	}
	return vars
}

// Mirror copies lines to the journal until ctx is done or lines is closed.
type Mirror struct {
	send   SendFunc
	logger *slog.Logger
}

// NewMirror returns a mirror writing through send, or to the local journal when send is nil.
func NewMirror(send SendFunc, logger *slog.Logger) *Mirror {
	if send == nil {
		send = sdjournal.Send
	}
	return &Mirror{send: send, logger: logger}
}

// Run blocks until ctx is done or lines is closed. Send failures are logged
// once per run of consecutive failures.
func (m *Mirror) Run(ctx context.Context, lines <-chan core.LogLine) {
	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			err := m.send(line.Line, Priority(line), Fields(line))
			switch {
			case err != nil && !failing:
				failing = true
				m.logger.Warn("journal write failed", "err", err)
			case err == nil && failing:
				failing = false
				m.logger.Info("journal write recovered")
			}
		}
	}
}

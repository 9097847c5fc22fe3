package core

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies what a worker process is for.
type Kind string

const (
	KindMain   Kind = "main"
	KindImport Kind = "import"
)

// Status represents the current state of a worker.
type Status string

const (
	StatusStopped     Status = "stopped"
	StatusRunning     Status = "running"
	StatusExited      Status = "exited"
	StatusCoolingDown Status = "cooling-down"
	StatusQueued      Status = "queued"
	StatusDisabled    Status = "disabled"
)

// Worker is a point-in-time view of a supervised process.
type Worker struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	Status    Status     `json:"status"`
	PID       int        `json:"pid,omitempty"`
	Args      []string   `json:"args,omitempty"`
	Link      string     `json:"link,omitempty"`
	StartedAt time.Time  `json:"started_at,omitzero"`
	UptimeSec uint64     `json:"uptime_sec"`
	MemBytes  uint64     `json:"mem_bytes"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	Restarts  int        `json:"restarts"`
	RestartAt *time.Time `json:"restart_at,omitempty"`
}

// WorkerID constructs a worker ID from its components.
// Format: kind:native_id
func WorkerID(kind Kind, nativeID string) string {
	return fmt.Sprintf("%s:%s", kind, nativeID)
}

// ParseWorkerID splits a worker ID into kind and native_id.
func ParseWorkerID(id string) (kind Kind, nativeID string, err error) {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid worker ID %q: expected kind:native_id", id)
	}
	switch k := Kind(parts[0]); k {
	case KindMain, KindImport:
		return k, parts[1], nil
	default:
		return "", "", fmt.Errorf("invalid worker ID %q: unknown kind %q", id, parts[0])
	}
}

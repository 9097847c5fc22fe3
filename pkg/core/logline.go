package core

import (
	"strings"
	"time"
)

// TimeLayout is the timestamp prefix used when log lines are rendered as text.
const TimeLayout = "2006-01-02 15:04:05"

// Stream names the origin of a log line.
type Stream string

const (
	StreamStdout     Stream = "stdout"
	StreamStderr     Stream = "stderr"
	StreamSupervisor Stream = "supervisor"
)

// Severity is the display level derived from a stream.
type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityNotice Severity = "notice"
	SeverityError  Severity = "error"
)

// LogLine is a single captured line of worker output.
type LogLine struct {
	Time     time.Time `json:"time"`
	WorkerID string    `json:"worker_id,omitempty"`
	Stream   Stream    `json:"stream"`
	Line     string    `json:"line"`
}

// Format renders the line as "<timestamp> <text>".
func (l LogLine) Format() string {
	return l.Time.Format(TimeLayout) + " " + strings.TrimSpace(l.Line)
}

// Severity maps the line's stream to a display level.
func (l LogLine) Severity() Severity {
	switch l.Stream {
	case StreamStderr:
		return SeverityError
	case StreamSupervisor:
		return SeverityNotice
	default:
		return SeverityInfo
	}
}

// Package procstat reads per-process figures from /proc.
package procstat

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Stat is what the daemon reports about a worker process.
type Stat struct {
	PID      int
	RSSBytes uint64
	Cmdline  string
	State    string
}

// FS reads from a proc filesystem mounted at Root.
type FS struct {
	Root     string
	PageSize int
}

// Default reads the host's /proc.
var Default = FS{Root: "/proc", PageSize: os.Getpagesize()}

// Read returns the stat of pid from the host's /proc.
func Read(pid int) (Stat, error) {
	return Default.Read(pid)
}

// Read returns the stat of pid.
func (fs FS) Read(pid int) (Stat, error) {
	dir := filepath.Join(fs.Root, strconv.Itoa(pid))

	statm, err := os.ReadFile(filepath.Join(dir, "statm"))
	if err != nil {
		return Stat{}, fmt.Errorf("read statm: %w", err)
	}
	fields := strings.Fields(string(statm))
	if len(fields) < 2 {
		return Stat{}, fmt.Errorf("pid %d: malformed statm %q", pid, statm)
	}
	pages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Stat{}, fmt.Errorf("pid %d: resident pages: %w", pid, err)
	}

	st := Stat{
		PID:      pid,
		RSSBytes: pages * uint64(fs.PageSize),
	}

	if cmdline, err := os.ReadFile(filepath.Join(dir, "cmdline")); err == nil {
		st.Cmdline = strings.TrimSpace(strings.ReplaceAll(string(cmdline), "\x00", " "))
	}

	// stat is "pid (comm) state ..."; comm may contain spaces and parens
	if raw, err := os.ReadFile(filepath.Join(dir, "stat")); err == nil {
		s := string(raw)
		if i := strings.LastIndexByte(s, ')'); i >= 0 {
			if rest := strings.Fields(s[i+1:]); len(rest) > 0 {
				st.State = rest[0]
			}
		}
	}

	return st, nil
}

// Package worker wraps a single external process: its command line, its two
// output streams and its terminal exit status.
//
// A Handle never restarts itself. Output is delivered line by line to the
// Output callback; exactly one Exit callback follows once both streams have
// been drained, so no output can be observed after the exit.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/modoterra/pricewatch/pkg/core"
)

// DefaultStopGrace is how long a process may take to exit after SIGTERM.
const DefaultStopGrace = 10 * time.Second

// Spec describes the process to run.
type Spec struct {
	ID        string
	Kind      core.Kind
	Path      string
	Args      []string
	Env       []string // KEY=VALUE pairs appended to the host environment
	Dir       string
	StopGrace time.Duration
}

// Callbacks receive a handle's events. Either may be nil.
type Callbacks struct {
	Output func(h *Handle, stream core.Stream, line string)
	Exit   func(h *Handle, res Result)
}

// Result is the terminal state of a process.
type Result struct {
	ExitCode  int       `json:"exit_code"`
	Signal    string    `json:"signal,omitempty"`
	Err       error     `json:"-"`
	StreamErr error     `json:"-"`
	Canceled  bool      `json:"canceled"`
	Started   time.Time `json:"started"`
	Stopped   time.Time `json:"stopped"`
}

// Success reports whether the process ran and exited with code 0.
func (r Result) Success() bool {
	return r.Err == nil && r.Signal == "" && r.ExitCode == 0
}

func (r Result) String() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("Failed to start: %v", r.Err)
	case r.Signal != "":
		return fmt.Sprintf("Terminated by signal: %s", r.Signal)
	default:
		return fmt.Sprintf("Exited with code: %d", r.ExitCode)
	}
}

// Handle is one spawned process.
type Handle struct {
	spec   Spec
	cb     Callbacks
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	pid      int
	started  time.Time
	canceled bool
	result   *Result
}

// Spawn starts the process described by spec and returns immediately.
// Start failures are not returned: they are delivered as the handle's exit
// event with Result.Err set. Cancelling ctx stops the process like Cancel.
func Spawn(ctx context.Context, spec Spec, cb Callbacks) *Handle {
	if spec.StopGrace <= 0 {
		spec.StopGrace = DefaultStopGrace
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		spec:   spec,
		cb:     cb,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	stdout := newLineWriter(func(line string) { h.emit(core.StreamStdout, line) })
	stderr := newLineWriter(func(line string) { h.emit(core.StreamStderr, line) })

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		h.watchKill()
		return signalGroup(cmd.Process, syscall.SIGTERM)
	}
	cmd.WaitDelay = spec.StopGrace
	h.cmd = cmd

	started := time.Now()
	if err := cmd.Start(); err != nil {
		h.mu.Lock()
		h.started = started
		h.mu.Unlock()
		go func() {
			cancel()
			h.finish(Result{
				ExitCode: -1,
				Err:      fmt.Errorf("start %q: %w", spec.Path, err),
				Started:  started,
				Stopped:  time.Now(),
			})
		}()
		return h
	}

	h.mu.Lock()
	h.pid = cmd.Process.Pid
	h.started = started
	h.mu.Unlock()

	go h.wait(stdout, stderr)
	return h
}

func (h *Handle) wait(stdout, stderr *lineWriter) {
	err := h.cmd.Wait()
	h.cancel()
	stdout.Flush()
	stderr.Flush()

	h.mu.Lock()
	res := Result{
		ExitCode: -1,
		Canceled: h.canceled,
		Started:  h.started,
		Stopped:  time.Now(),
	}
	h.mu.Unlock()

	if st := h.cmd.ProcessState; st != nil {
		res.ExitCode = st.ExitCode()
		if ws, ok := st.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			res.Signal = ws.Signal().String()
		}
		if err != nil && errorIsWaitDelay(err) {
			res.StreamErr = err
		}
	} else if err != nil {
		res.Err = err
	}
	h.finish(res)
}

func (h *Handle) finish(res Result) {
	h.mu.Lock()
	if h.result != nil {
		h.mu.Unlock()
		return
	}
	h.result = &res
	h.mu.Unlock()

	if h.cb.Exit != nil {
		h.cb.Exit(h, res)
	}
	close(h.done)
}

func (h *Handle) emit(stream core.Stream, line string) {
	h.mu.Lock()
	ended := h.result != nil
	h.mu.Unlock()
	if ended || h.cb.Output == nil {
		return
	}
	h.cb.Output(h, stream, line)
}

// Cancel asks the process group to terminate with SIGTERM and escalates to
// SIGKILL after the stop grace period. The resulting exit is marked Canceled.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.result == nil {
		h.canceled = true
	}
	h.mu.Unlock()
	h.cancel()
}

// watchKill sends SIGKILL to the whole group if it outlives the grace period.
func (h *Handle) watchKill() {
	go func() {
		t := time.NewTimer(h.spec.StopGrace)
		defer t.Stop()
		select {
		case <-h.done:
		case <-t.C:
			_ = signalGroup(h.cmd.Process, syscall.SIGKILL)
		}
	}()
}

// ID returns the identifier given in the spec.
func (h *Handle) ID() string { return h.spec.ID }

// Kind returns the worker kind given in the spec.
func (h *Handle) Kind() core.Kind { return h.spec.Kind }

// Spec returns a copy of the spec the handle was spawned with.
func (h *Handle) Spec() Spec {
	s := h.spec
	s.Args = append([]string(nil), h.spec.Args...)
	s.Env = append([]string(nil), h.spec.Env...)
	return s
}

// Args returns a copy of the process arguments.
func (h *Handle) Args() []string {
	return append([]string(nil), h.spec.Args...)
}

// PID returns the OS process id, or 0 if the process never started.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

// StartedAt returns the time the spawn was attempted.
func (h *Handle) StartedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// Done is closed after the exit callback has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the terminal state once the process has ended.
func (h *Handle) Result() (Result, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.result == nil {
		return Result{}, false
	}
	return *h.result, true
}

// Running reports whether the process has started and not yet ended.
func (h *Handle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid != 0 && h.result == nil
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return os.ErrProcessDone
	}
	if err := syscall.Kill(-p.Pid, sig); err != nil {
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}
	return nil
}

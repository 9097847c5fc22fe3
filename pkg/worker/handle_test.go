package worker

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modoterra/pricewatch/pkg/core"
)

type recorder struct {
	mu     sync.Mutex
	out    []string
	err    []string
	exits  []Result
	late   bool // output seen after exit
	exited bool
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		Output: func(_ *Handle, stream core.Stream, line string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.exited {
				r.late = true
			}
			if stream == core.StreamStderr {
				r.err = append(r.err, line)
			} else {
				r.out = append(r.out, line)
			}
		},
		Exit: func(_ *Handle, res Result) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.exited = true
			r.exits = append(r.exits, res)
		},
	}
}

func lookSh(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	return sh
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for process exit")
	}
}

func TestSpawnCapturesStreams(t *testing.T) {
	sh := lookSh(t)
	var rec recorder
	h := Spawn(t.Context(), Spec{
		ID:   "main:1",
		Kind: core.KindMain,
		Path: sh,
		Args: []string{"-c", "echo out1; echo err1 >&2; printf 'out2\\r\\n\\n'; printf tail; exit 3"},
	}, rec.callbacks())
	require.NotZero(t, h.PID())
	waitDone(t, h)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, []string{"out1", "out2", "tail"}, rec.out)
	require.Equal(t, []string{"err1"}, rec.err)
	require.Len(t, rec.exits, 1)
	require.False(t, rec.late)

	res := rec.exits[0]
	require.Equal(t, 3, res.ExitCode)
	require.NoError(t, res.Err)
	require.False(t, res.Canceled)
	require.False(t, res.Success())
	require.Equal(t, "Exited with code: 3", res.String())
	require.False(t, h.Running())

	got, ok := h.Result()
	require.True(t, ok)
	require.Equal(t, 3, got.ExitCode)
}

func TestSpawnEnvironment(t *testing.T) {
	sh := lookSh(t)
	var rec recorder
	h := Spawn(t.Context(), Spec{
		Path: sh,
		Args: []string{"-c", "echo \"$PW_TEST_VALUE\""},
		Env:  []string{"PW_TEST_VALUE=hello"},
	}, rec.callbacks())
	waitDone(t, h)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, []string{"hello"}, rec.out)
	require.True(t, rec.exits[0].Success())
}

func TestSpawnFailureIsAnExitEvent(t *testing.T) {
	var rec recorder
	h := Spawn(t.Context(), Spec{Path: "/nonexistent/pricewatch-worker"}, rec.callbacks())
	waitDone(t, h)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.exits, 1)
	res := rec.exits[0]
	require.Error(t, res.Err)
	require.Equal(t, -1, res.ExitCode)
	require.Contains(t, res.String(), "Failed to start")
	require.Zero(t, h.PID())
	require.False(t, h.Running())
}

func TestCancelTerminates(t *testing.T) {
	sh := lookSh(t)
	var rec recorder
	h := Spawn(t.Context(), Spec{
		Path:      sh,
		Args:      []string{"-c", "echo ready; exec sleep 30"},
		StopGrace: 2 * time.Second,
	}, rec.callbacks())

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.out) == 1
	}, 5*time.Second, 10*time.Millisecond)

	h.Cancel()
	waitDone(t, h)

	res, ok := h.Result()
	require.True(t, ok)
	require.True(t, res.Canceled)
	require.Equal(t, "terminated", res.Signal)
	require.Equal(t, "Terminated by signal: terminated", res.String())
}

func TestCancelEscalatesToKill(t *testing.T) {
	sh := lookSh(t)
	var rec recorder
	h := Spawn(t.Context(), Spec{
		Path:      sh,
		Args:      []string{"-c", "trap '' TERM; echo ready; while :; do sleep 0.05; done"},
		StopGrace: 200 * time.Millisecond,
	}, rec.callbacks())

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.out) == 1
	}, 5*time.Second, 10*time.Millisecond)

	h.Cancel()
	waitDone(t, h)

	res, _ := h.Result()
	require.True(t, res.Canceled)
	require.Equal(t, "killed", res.Signal)
}

func TestParentContextStopsProcess(t *testing.T) {
	sh := lookSh(t)
	ctx, cancel := context.WithCancel(t.Context())
	var rec recorder
	h := Spawn(ctx, Spec{Path: sh, Args: []string{"-c", "exec sleep 30"}}, rec.callbacks())
	cancel()
	waitDone(t, h)

	res, _ := h.Result()
	require.False(t, res.Canceled)
	require.NotEmpty(t, res.Signal)
}

func TestSpecCopy(t *testing.T) {
	var rec recorder
	h := Spawn(t.Context(), Spec{ID: "import:x", Kind: core.KindImport, Path: "/nonexistent", Args: []string{"a"}}, rec.callbacks())
	waitDone(t, h)

	s := h.Spec()
	s.Args[0] = "changed"
	require.Equal(t, []string{"a"}, h.Spec().Args)
	require.Equal(t, "import:x", h.ID())
	require.Equal(t, core.KindImport, h.Kind())
	require.Equal(t, DefaultStopGrace, h.Spec().StopGrace)
}

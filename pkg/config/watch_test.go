package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "supervisor:\n  cooldown: 1m\n")

	ctx, cancel := context.WithCancel(t.Context())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, logger, func(cfg *Config) { got <- cfg })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Invalid content is skipped.
	require.NoError(t, os.WriteFile(path, []byte("supervisor:\n  log_capacity: -1\n"), 0644))
	time.Sleep(2 * WatchDebounce)
	require.NoError(t, os.WriteFile(path, []byte("supervisor:\n  cooldown: 2m\n"), 0644))

	select {
	case cfg := <-got:
		require.Equal(t, 2*time.Minute, cfg.Supervisor.Cooldown)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for reload")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestWatchRequiresPath(t *testing.T) {
	err := Watch(t.Context(), "", slog.New(slog.NewTextHandler(io.Discard, nil)), func(*Config) {})
	require.Error(t, err)
}

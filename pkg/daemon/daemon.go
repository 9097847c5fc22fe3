package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/modoterra/pricewatch/internal/buildinfo"
	"github.com/modoterra/pricewatch/pkg/config"
	"github.com/modoterra/pricewatch/pkg/core"
	"github.com/modoterra/pricewatch/pkg/linkcheck"
	"github.com/modoterra/pricewatch/pkg/transport/uds"
)

// logEventBuffer is the ring subscription buffer for socket log events.
const logEventBuffer = 512

// Daemon exposes a Supervisor to pricewatch clients over a Unix socket.
type Daemon struct {
	server     *uds.Server
	supervisor *Supervisor
	configPath string
	workers    map[string]core.Worker
	mu         sync.RWMutex
	logger     *slog.Logger
}

// New creates a new daemon instance. configPath is the file re-read by
// ReloadConfig; empty means the default search paths.
func New(socketPath string, sup *Supervisor, configPath string, logger *slog.Logger) *Daemon {
	srv := uds.NewServer(socketPath, logger)
	d := &Daemon{
		server:     srv,
		supervisor: sup,
		configPath: configPath,
		workers:    make(map[string]core.Worker),
		logger:     logger,
	}
	d.registerHandlers()
	return d
}

// Run serves the socket and forwards new log lines as events. Blocks until
// the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	lines := d.supervisor.Subscribe(logEventBuffer)
	defer d.supervisor.Unsubscribe(lines)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.forwardLogs(ctx, lines)
		return nil
	})
	g.Go(func() error {
		return d.server.Start(ctx)
	})
	return g.Wait()
}

// Shutdown cleans up resources.
func (d *Daemon) Shutdown() {
	d.server.Shutdown()
}

// Server returns the underlying UDS server (for broadcasting events).
func (d *Daemon) Server() *uds.Server {
	return d.server
}

func (d *Daemon) forwardLogs(ctx context.Context, lines <-chan core.LogLine) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			evt, err := uds.NewEvent(uds.EventLogsLine, line)
			if err != nil {
				d.logger.Error("encode log event", "err", err)
				continue
			}
			d.server.Broadcast(evt)
		}
	}
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodReadLog, d.handleReadLog)
	d.server.Handle(uds.MethodLogEntries, d.handleLogEntries)
	d.server.Handle(uds.MethodWorkers, d.handleWorkers)
	d.server.Handle(uds.MethodRunImport, d.handleRunImport)
	d.server.Handle(uds.MethodCancelWorker, d.handleCancelWorker)
	d.server.Handle(uds.MethodStartMain, d.handleStartMain)
	d.server.Handle(uds.MethodStopMain, d.handleStopMain)
	d.server.Handle(uds.MethodReloadConfig, d.handleReloadConfig)
}

func (d *Daemon) handlePing(_ context.Context, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true, Version: buildinfo.Version, PID: os.Getpid()}, nil
}

func (d *Daemon) handleReadLog(_ context.Context, _ uds.Message) (any, error) {
	return d.supervisor.ReadLog(), nil
}

func (d *Daemon) handleLogEntries(_ context.Context, _ uds.Message) (any, error) {
	return d.supervisor.Entries(), nil
}

func (d *Daemon) handleWorkers(_ context.Context, _ uds.Message) (any, error) {
	return d.supervisor.Workers(), nil
}

func (d *Daemon) handleRunImport(_ context.Context, msg uds.Message) (any, error) {
	var req uds.RunImportRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	link, err := linkcheck.Validate(req.Link)
	if err != nil {
		return nil, err
	}
	id := d.supervisor.RunImport(link)
	return uds.RunImportResponse{ID: id, Message: "Import job started"}, nil
}

func (d *Daemon) handleCancelWorker(_ context.Context, msg uds.Message) (any, error) {
	var req uds.CancelWorkerRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if err := d.supervisor.CancelWorker(req.ID); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (d *Daemon) handleStartMain(_ context.Context, _ uds.Message) (any, error) {
	if err := d.supervisor.StartMain(); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (d *Daemon) handleStopMain(_ context.Context, _ uds.Message) (any, error) {
	if err := d.supervisor.StopMain(); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (d *Daemon) handleReloadConfig(_ context.Context, _ uds.Message) (any, error) {
	cfg, err := config.Load(d.configPath)
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	d.supervisor.Reconfigure(cfg)
	d.logger.Info("config reloaded", "file", cfg.File)
	return uds.ReloadConfigResponse{File: cfg.File}, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/modoterra/pricewatch/internal/buildinfo"
	"github.com/modoterra/pricewatch/internal/logging"
	"github.com/modoterra/pricewatch/pkg/config"
	"github.com/modoterra/pricewatch/pkg/daemon"
	"github.com/modoterra/pricewatch/pkg/httpapi"
	"github.com/modoterra/pricewatch/pkg/journal"
)

const (
	statusInterval = time.Second
	journalBuffer  = 1024
)

type options struct {
	configPath string
	socket     string
	http       string
	httpSet    bool
	verbose    bool
}

// loadConfig loads and validates the configuration and applies flag overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.socket != "" {
		cfg.Listen.Socket = opts.socket
	}
	if opts.httpSet {
		cfg.Listen.HTTP = opts.http
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func run(parent context.Context, opts options) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, opts.verbose)
	if err != nil {
		return err
	}
	if cfg.File != "" {
		logger.Info("config loaded", "file", cfg.File)
	} else {
		logger.Info("no config file found, using defaults and environment", "searched", config.SearchPaths())
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Signals end the run group; only Shutdown stops the workers.
	sup := daemon.NewSupervisor(context.WithoutCancel(ctx), cfg, logger)
	d := daemon.New(cfg.Listen.Socket, sup, cfg.File, logger)
	defer d.Shutdown()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(gctx)
	})
	g.Go(func() error {
		daemon.NewStatusLoop(d, statusInterval, logger).Run(gctx)
		return nil
	})

	if cfg.Listen.HTTP != "" {
		api := httpapi.New(sup, logger)
		g.Go(func() error {
			return api.Serve(gctx, cfg.Listen.HTTP)
		})
	}

	if cfg.Log.Journal {
		if journal.Enabled() {
			lines := sup.Subscribe(journalBuffer)
			defer sup.Unsubscribe(lines)
			mirror := journal.NewMirror(nil, logger)
			g.Go(func() error {
				mirror.Run(gctx, lines)
				return nil
			})
		} else {
			logger.Warn("journal mirroring requested but journald is not available")
		}
	}

	if cfg.File != "" {
		g.Go(func() error {
			return config.Watch(gctx, cfg.File, logger, sup.Reconfigure)
		})
	}
	g.Go(func() error {
		reloadOnHangup(gctx, opts, sup, logger)
		return nil
	})

	// The main worker starts once clients can connect.
	select {
	case <-d.Server().Ready():
		sup.Start()
		logger.Info("pricewatchd started", "version", buildinfo.Version, "pid", os.Getpid(), "socket", cfg.Listen.Socket)
		notifyReady(logger)
		g.Go(func() error {
			runWatchdog(gctx, logger)
			return nil
		})
	case <-gctx.Done():
	}

	runErr := g.Wait()

	notifyStopping(logger)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Supervisor.StopGrace+5*time.Second)
	defer cancel()
	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.Error("supervisor shutdown", "err", err)
	}
	if runErr != nil {
		logger.Error("daemon error", "err", runErr)
		return runErr
	}
	logger.Info("shutting down")
	return nil
}

// reloadOnHangup re-reads the configuration on SIGHUP.
func reloadOnHangup(ctx context.Context, opts options, sup *daemon.Supervisor, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			notifyReloading(logger)
			cfg, err := loadConfig(opts)
			if err != nil {
				logger.Error("config reload failed", "err", err)
			} else {
				sup.Reconfigure(cfg)
			}
			notifyReady(logger)
		}
	}
}

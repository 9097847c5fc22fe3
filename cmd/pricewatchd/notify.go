package main

import (
	"context"
	"log/slog"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
)

// notify sends state to systemd. Outside a notify unit it does nothing.
func notify(logger *slog.Logger, state string) {
	sent, err := sddaemon.SdNotify(false, state)
	switch {
	case err != nil:
		logger.Warn("sd_notify failed", "state", state, "err", err)
	case sent:
		logger.Debug("sd_notify", "state", state)
	}
}

func notifyReady(logger *slog.Logger) { notify(logger, sddaemon.SdNotifyReady) }
func notifyStopping(logger *slog.Logger) { notify(logger, sddaemon.SdNotifyStopping) }
func notifyReloading(logger *slog.Logger) { notify(logger, sddaemon.SdNotifyReloading) }

// runWatchdog pings the systemd watchdog at half its interval until ctx is
// done. It returns at once when the unit has no WatchdogSec.
func runWatchdog(ctx context.Context, logger *slog.Logger) {
	interval, err := sddaemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("watchdog check failed", "err", err)
		return
	}
	if interval == 0 {
		return
	}
	logger.Info("watchdog enabled", "interval", interval)

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			notify(logger, sddaemon.SdNotifyWatchdog)
		}
	}
}

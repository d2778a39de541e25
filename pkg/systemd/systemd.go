// Package systemd speaks the sd_notify protocol. Every call is a no-op when
// the process was not started by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "keysendnotifier/pkg/logx"
)

func notify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

// Ready tells the service manager that startup finished.
func Ready() error { return notify(daemon.SdNotifyReady) }

// Stopping tells the service manager that shutdown began.
func Stopping() error { return notify(daemon.SdNotifyStopping) }

// Status sets the free-form unit status shown by systemctl.
func Status(s string) error { return notify("STATUS=" + s) }

// Watchdog pings the service manager at half the configured WatchdogSec while
// healthy reports true. It returns nil immediately when the watchdog is off or
// misconfigured.
func Watchdog(ctx context.Context, healthy func() bool, log logx.Logger) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		// a malformed WATCHDOG_USEC must not take the bridge down
		log.Warn("systemd watchdog disabled", logx.Err(err))
		return nil
	}
	if interval <= 0 {
		return nil
	}
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	log.Debug("systemd watchdog enabled", logx.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if healthy != nil && !healthy() {
				log.Warn("unhealthy; skipping watchdog ping")
				continue
			}
			if err := notify(daemon.SdNotifyWatchdog); err != nil {
				log.Warn("watchdog ping failed", logx.Err(err))
			}
		}
	}
}

// Package systemd reports service state to the service manager through
// the sd_notify protocol. Every call is a no-op when the process was not
// started by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends state updates. The zero value uses the real socket.
type Notifier struct {
	// send overrides daemon.SdNotify (tests).
	send func(state string) (bool, error)
}

func (n Notifier) notify(state string) (bool, error) {
	if n.send != nil {
		return n.send(state)
	}
	return daemon.SdNotify(false, state)
}

// Ready tells the manager startup finished. It returns false when no
// manager is listening.
func (n Notifier) Ready(status string) (bool, error) {
	state := daemon.SdNotifyReady
	if status != "" {
		state += "\nSTATUS=" + status
	}
	return n.notify(state)
}

func (n Notifier) Stopping() (bool, error) {
	return n.notify(daemon.SdNotifyStopping)
}

func (n Notifier) Status(msg string) (bool, error) {
	return n.notify("STATUS=" + msg)
}

// WatchdogInterval returns half the configured WatchdogSec, or 0 when the
// watchdog is off.
func WatchdogInterval() (time.Duration, error) {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0, err
	}
	return d / 2, nil
}

// RunWatchdog pings the manager every interval until ctx is done.
// healthy is consulted before each ping; an error skips the ping so the
// manager restarts a wedged process.
func (n Notifier) RunWatchdog(ctx context.Context, interval time.Duration, healthy func() error) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil {
				if err := healthy(); err != nil {
					_, _ = n.Status(fmt.Sprintf("unhealthy: %v", err))
					continue
				}
			}
			if _, err := n.notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}

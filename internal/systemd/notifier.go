package systemd

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/oshokin/stream-notifier/internal/logger"
)

// Notifier sends lifecycle and watchdog notifications.
type Notifier struct {
	// sdNotify delivers one state string; it reports false when systemd is not listening.
	sdNotify func(state string) (bool, error)
	// watchdog is the WatchdogSec of the unit; zero when disabled.
	watchdog time.Duration
	// lastBeat is the unix nano time of the last Heartbeat.
	lastBeat atomic.Int64
	// stall is the longest accepted gap between heartbeats, in nanoseconds; zero never withholds.
	stall atomic.Int64
}

// New creates a notifier for the current process and detects the watchdog interval.
func New(ctx context.Context) *Notifier {
	watchdog, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.WarnKV(ctx, "Invalid systemd watchdog settings, watchdog disabled", "error", err)

		watchdog = 0
	}

	return newNotifier(func(state string) (bool, error) {
		return daemon.SdNotify(false, state)
	}, watchdog)
}

func newNotifier(sdNotify func(string) (bool, error), watchdog time.Duration) *Notifier {
	n := &Notifier{
		sdNotify: sdNotify,
		watchdog: watchdog,
	}

	n.Heartbeat()

	return n
}

// WatchdogInterval returns the unit watchdog interval, or zero when disabled.
func (n *Notifier) WatchdogInterval() time.Duration {
	return n.watchdog
}

// Ready reports that startup has finished.
func (n *Notifier) Ready(ctx context.Context) {
	n.send(ctx, daemon.SdNotifyReady)
}

// Reloading reports that the configuration is being reloaded.
func (n *Notifier) Reloading(ctx context.Context) {
	n.send(ctx, daemon.SdNotifyReloading)
}

// Stopping reports that shutdown has begun.
func (n *Notifier) Stopping(ctx context.Context) {
	n.send(ctx, daemon.SdNotifyStopping)
}

// SetStallLimit changes how old the last heartbeat may be before pings are withheld.
// It is safe to call while RunWatchdog is running.
func (n *Notifier) SetStallLimit(stall time.Duration) {
	n.stall.Store(int64(stall))
}

// Heartbeat records that the poll loop finished a cycle.
func (n *Notifier) Heartbeat() {
	n.lastBeat.Store(time.Now().UnixNano())
}

// RunWatchdog pings the watchdog at half its interval while the last heartbeat
// is within the stall limit. A loop that stops cycling is therefore restarted by systemd.
// It returns when ctx is canceled; without a watchdog it returns immediately.
func (n *Notifier) RunWatchdog(ctx context.Context) {
	if n.watchdog <= 0 {
		return
	}

	ticker := time.NewTicker(n.watchdog / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			since := now.Sub(time.Unix(0, n.lastBeat.Load()))
			if stall := time.Duration(n.stall.Load()); stall > 0 && since > stall {
				logger.WarnKV(ctx, "Poll loop stalled, withholding watchdog ping",
					"since_last_cycle", since.String(),
					"stall_limit", stall.String())

				continue
			}

			n.send(ctx, daemon.SdNotifyWatchdog)
		}
	}
}

func (n *Notifier) send(ctx context.Context, state string) {
	sent, err := n.sdNotify(state)
	if err != nil {
		logger.WarnKV(ctx, "Failed to notify systemd", "state", state, "error", err)

		return
	}

	if sent {
		logger.DebugKV(ctx, "Notified systemd", "state", state)
	}
}

// Package watchdog speaks the systemd notify protocol: readiness, stopping
// and periodic watchdog keep-alives.
package watchdog

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sweeney/co2mon/internal/logger"
)

// Notify states.
const (
	StateReady    = "READY=1"
	StateWatchdog = "WATCHDOG=1"
	StateStopping = "STOPPING=1"
)

// DefaultKickPeriod is used when the configured period is not positive.
const DefaultKickPeriod = 60 * time.Second

// Notifier sends datagrams to the service manager's notify socket.
// A Notifier with no socket silently does nothing.
type Notifier struct {
	socket string
}

// NewNotifier uses $NOTIFY_SOCKET.
func NewNotifier() *Notifier {
	return &Notifier{socket: os.Getenv("NOTIFY_SOCKET")}
}

// NewNotifierAt uses an explicit socket path. An empty path disables it.
func NewNotifierAt(socket string) *Notifier {
	return &Notifier{socket: socket}
}

// Enabled reports whether a socket is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.socket != ""
}

// Notify sends one state line.
func (n *Notifier) Notify(state string) error {
	if !n.Enabled() {
		return nil
	}
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: n.socket, Net: "unixgram"})
	if err != nil {
		return fmt.Errorf("dial notify socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(state)); err != nil {
		return fmt.Errorf("write %s: %w", state, err)
	}
	return nil
}

// Ready tells the service manager startup is complete.
func (n *Notifier) Ready() error { return n.Notify(StateReady) }

// Stopping tells the service manager shutdown has begun.
func (n *Notifier) Stopping() error { return n.Notify(StateStopping) }

// Kicker sends WATCHDOG=1 periodically.
type Kicker struct {
	n   *Notifier
	log *logger.Logger

	// Healthy, if set, is consulted before every kick. Skipping kicks lets
	// the service manager restart a wedged process.
	Healthy func() bool
}

// NewKicker creates a Kicker for n.
func NewKicker(n *Notifier, log *logger.Logger) *Kicker {
	if log == nil {
		log = logger.Nop()
	}
	return &Kicker{n: n, log: log}
}

// Run kicks immediately and then every period until ctx is done.
func (k *Kicker) Run(ctx context.Context, period time.Duration) {
	if !k.n.Enabled() {
		k.log.Debugw("no notify socket, watchdog disabled")
		return
	}
	if period <= 0 {
		period = DefaultKickPeriod
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		k.kick()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (k *Kicker) kick() {
	if k.Healthy != nil && !k.Healthy() {
		k.log.Warnw("unhealthy, skipping watchdog kick")
		return
	}
	if err := k.n.Notify(StateWatchdog); err != nil {
		k.log.Warnw("watchdog kick failed", "error", err)
	}
}

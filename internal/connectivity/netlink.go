package connectivity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"dealsync/internal/logging"
)

// netlinkNudger listens for udev net-subsystem events and nudges the monitor
// so an interface coming up is noticed immediately instead of at the next
// probe tick.
type netlinkNudger struct {
	logger *slog.Logger
	nudge  func()

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newNetlinkNudger(logger *slog.Logger, nudge func()) *netlinkNudger {
	return &netlinkNudger{logger: logger, nudge: nudge}
}

// Start begins listening for netlink events. Failure to connect is non-fatal;
// the periodic probe still covers transitions, just slower.
func (n *netlinkNudger) Start(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		n.logger.Warn("netlink connect failed; relying on periodic probe",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon can open netlink sockets"))
		return
	}

	n.conn = conn
	n.quit = make(chan struct{})
	n.running = true

	quit := n.quit
	go n.loop(ctx, conn, quit)
}

// Stop shuts the listener down.
func (n *netlinkNudger) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return
	}
	if n.quit != nil {
		close(n.quit)
		n.quit = nil
	}
	if n.conn != nil {
		_ = n.conn.Close()
		n.conn = nil
	}
	n.running = false
}

func (n *netlinkNudger) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, netMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case event := <-queue:
			n.logger.Debug("network uevent",
				logging.String("action", string(event.Action)),
				logging.String("kobj", event.KObj))
			n.nudge()
		case err := <-errs:
			n.logger.Warn("netlink monitor error", logging.Error(err))
		}
	}
}

// netMatcher matches interface add/remove/change events on the net
// subsystem.
func netMatcher() netlink.Matcher {
	action := "add|remove|change|move"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "net",
		},
	})
	return rules
}

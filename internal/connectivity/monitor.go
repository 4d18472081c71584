package connectivity

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"dealsync/internal/config"
	"dealsync/internal/logging"
)

// Monitor watches the machine's network state and publishes transitions to
// subscribers. Offline/online changes drive the sync engine; everything else
// only updates the snapshot.
type Monitor struct {
	probeURL      string
	probeInterval time.Duration
	probeClient   *http.Client
	logger        *slog.Logger

	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)

	mu          sync.Mutex
	state       State
	forced      bool
	subscribers map[int]chan State
	nextSubID   int
	nudge       chan struct{}
	quit        chan struct{}
	running     bool

	netlink *netlinkNudger
}

// NewMonitor builds a monitor from configuration.
func NewMonitor(cfg *config.Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.Connectivity.ProbeIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := time.Duration(cfg.Connectivity.ProbeTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	m := &Monitor{
		probeURL:      cfg.Connectivity.ProbeURL,
		probeInterval: interval,
		probeClient:   &http.Client{Timeout: timeout},
		logger:        logging.NewComponentLogger(logger, "connectivity"),
		interfaces:    net.Interfaces,
		addrs:         func(iface net.Interface) ([]net.Addr, error) { return iface.Addrs() },
		subscribers:   make(map[int]chan State),
		nudge:         make(chan struct{}, 1),
	}
	m.netlink = newNetlinkNudger(m.logger, m.Nudge)
	return m
}

// Start begins link scanning and probing. It runs until Stop or ctx
// cancellation.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.quit = make(chan struct{})
	quit := m.quit
	m.mu.Unlock()

	if m.netlink != nil {
		m.netlink.Start(ctx)
	}
	go m.loop(ctx, quit)
}

// Stop halts the monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.quit)
	m.quit = nil
	m.mu.Unlock()

	if m.netlink != nil {
		m.netlink.Stop()
	}
}

// Current returns the latest snapshot.
func (m *Monitor) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers for state transitions. The returned cancel function
// must be called to release the subscription.
func (m *Monitor) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan State, 4)
	m.subscribers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(existing)
		}
	}
}

// Nudge requests an immediate re-probe, used when a link event arrives
// between probe ticks.
func (m *Monitor) Nudge() {
	select {
	case m.nudge <- struct{}{}:
	default:
	}
}

// SetState overrides the snapshot and notifies subscribers. Once set, the
// probe loop stops writing so tests control transitions deterministically.
func (m *Monitor) SetState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = true
	if !m.state.Equal(state) {
		m.state = state
		m.publishLocked(state)
		return
	}
	m.state = state
}

func (m *Monitor) loop(ctx context.Context, quit <-chan struct{}) {
	m.check(ctx)
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-ticker.C:
			m.check(ctx)
		case <-m.nudge:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	next := State{
		Connected: m.linkUp(),
		CheckedAt: time.Now(),
	}
	if next.Connected && m.probeURL != "" {
		next.InternetReachable = boolPtr(m.probe(ctx))
	}

	m.mu.Lock()
	if m.forced {
		m.mu.Unlock()
		return
	}
	changed := !m.state.Equal(next)
	m.state = next
	if changed {
		m.publishLocked(next)
	}
	m.mu.Unlock()

	if changed {
		m.logger.Info("connectivity changed",
			logging.Bool("connected", next.Connected),
			logging.Bool("online", next.Online()),
			logging.String(logging.FieldEventType, "connectivity_changed"))
	}
}

// linkUp reports whether any non-loopback interface is up with an address.
func (m *Monitor) linkUp() bool {
	ifaces, err := m.interfaces()
	if err != nil {
		m.logger.Warn("interface scan failed", logging.Error(err))
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := m.addrs(iface)
		if err != nil || len(addrs) == 0 {
			continue
		}
		return true
	}
	return false
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.probeClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// publishLocked delivers under the lock with non-blocking sends so an
// unsubscribe cannot close a channel mid-delivery. A slow subscriber drops
// intermediate transitions, never the monitor.
func (m *Monitor) publishLocked(state State) {
	for _, ch := range m.subscribers {
		select {
		case ch <- state:
		default:
		}
	}
}

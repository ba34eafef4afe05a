// Package connectivity watches network reachability of the remote store.
package connectivity

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/mmynk/ledgerly/internal/notify"
)

// DefaultInterval is how often Run re-checks reachability.
const DefaultInterval = 30 * time.Second

// Checker reports whether the network is usable.
type Checker interface {
	Check(ctx context.Context) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) bool

func (f CheckerFunc) Check(ctx context.Context) bool { return f(ctx) }

// DialChecker reports the network as usable when a TCP connection to
// Address can be opened within Timeout.
type DialChecker struct {
	Address string
	Timeout time.Duration
}

// NewDialChecker derives the dial address from a base URL, defaulting the
// port from the scheme.
func NewDialChecker(baseURL string, timeout time.Duration) (*DialChecker, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return &DialChecker{Address: net.JoinHostPort(u.Hostname(), port), Timeout: timeout}, nil
}

func (d *DialChecker) Check(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Monitor tracks whether the network is reachable and publishes changes.
// It starts optimistic: Online is true until a check says otherwise.
type Monitor struct {
	checker  Checker
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	online bool

	changes notify.Broadcaster[bool]
}

// NewMonitor creates a monitor. A zero interval selects DefaultInterval.
func NewMonitor(checker Checker, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		checker:  checker,
		interval: interval,
		logger:   logger,
		online:   true,
	}
}

// Online reports the last observed reachability.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe returns a channel that receives the new value on every
// transition.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	return m.changes.Subscribe()
}

// Check probes once and publishes the result if it differs from the
// previous one.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.checker.Check(ctx)
	m.Set(online)
	return online
}

// Set records an externally observed reachability value.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if changed {
		m.logger.Info("Connectivity changed", "online", online)
		m.changes.Publish(online)
	}
}

// Run checks immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

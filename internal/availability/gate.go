// Package availability decides whether remote sync is permitted for the
// current session.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/ledgerly/internal/notify"
	"github.com/mmynk/ledgerly/pkg/api"
)

const (
	DefaultProbeTimeout = 10 * time.Second
	DefaultDebounce     = time.Second
)

// ErrProbeTimeout is the Status.Err of a probe that got no answer in time.
var ErrProbeTimeout = errors.New("account status probe timed out")

// State is the resolved availability of remote sync.
type State int

const (
	Undetermined State = iota
	Available
	NoAccount
	Restricted
	TemporarilyUnavailable
	Error
	// Disabled is used for guest sessions. No probe is made.
	Disabled
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case NoAccount:
		return "no_account"
	case Restricted:
		return "restricted"
	case TemporarilyUnavailable:
		return "temporarily_unavailable"
	case Error:
		return "error"
	case Disabled:
		return "disabled"
	default:
		return "undetermined"
	}
}

// Status is a resolved State plus the text shown to the user when sync is
// not available. Err is set only for the Error state.
type Status struct {
	State  State
	Reason string
	Err    error
}

// Prober asks the remote store about the signed-in account.
type Prober interface {
	AccountStatus(ctx context.Context) (api.AccountStatus, error)
}

// Connectivity reports whether the network is reachable.
type Connectivity interface {
	Online() bool
}

// Options tunes a Gate. Zero values select the defaults.
type Options struct {
	ProbeTimeout time.Duration
	Debounce     time.Duration
}

// Gate resolves and publishes the availability of remote sync. None of its
// methods return errors: failures resolve to a Status.
type Gate struct {
	prober  Prober
	network Connectivity
	timeout time.Duration
	delay   time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	status   Status
	userID   string
	guest    bool
	gen      uint64
	debounce *time.Timer

	changes notify.Broadcaster[Status]
}

// NewGate creates a gate in the Undetermined state. network may be nil.
func NewGate(prober Prober, network Connectivity, opts Options, logger *slog.Logger) *Gate {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		prober:  prober,
		network: network,
		timeout: opts.ProbeTimeout,
		delay:   opts.Debounce,
		logger:  logger,
		status:  checking(),
	}
}

// Status returns the last resolved status.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Reason returns the user-facing explanation for the current status, or ""
// when sync is available.
func (g *Gate) Reason() string {
	return g.Status().Reason
}

// IsAvailable reports whether remote operations are permitted.
func (g *Gate) IsAvailable() bool {
	return g.Status().State == Available
}

// Subscribe returns a channel receiving every published status.
func (g *Gate) Subscribe() (<-chan Status, func()) {
	return g.changes.Subscribe()
}

// OnIdentityChanged records a sign-in, sign-out or guest toggle. Guest
// sessions are disabled immediately; any other identity is Undetermined
// until the re-evaluation that runs after the debounce delay.
func (g *Gate) OnIdentityChanged(userID string, isGuest bool) {
	g.mu.Lock()
	g.userID = userID
	g.guest = isGuest
	g.gen++
	gen := g.gen
	if g.debounce != nil {
		g.debounce.Stop()
	}
	g.debounce = time.AfterFunc(g.delay, func() { g.CheckAvailability() })
	g.mu.Unlock()

	if isGuest {
		g.set(gen, disabled())
		return
	}
	g.set(gen, checking())
}

// Watch re-evaluates availability on every connectivity transition until
// ctx is done or transitions is closed.
func (g *Gate) Watch(ctx context.Context, transitions <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-transitions:
			if !ok {
				return
			}
			g.CheckAvailability()
		}
	}
}

// Refresh re-evaluates availability, waits for the outcome and reports
// whether remote operations are now permitted.
func (g *Gate) Refresh(ctx context.Context) bool {
	return g.Probe(ctx).State == Available
}

// CheckAvailability starts an evaluation and returns the current status
// without waiting for the probe. Cases that need no probe resolve
// synchronously.
func (g *Gate) CheckAvailability() Status {
	gen, st, needProbe := g.precheck()
	if !needProbe {
		g.set(gen, st)
		return g.Status()
	}
	go g.probe(context.Background(), gen)
	return g.Status()
}

// Probe evaluates availability and waits for the result, bounded by the
// probe timeout.
func (g *Gate) Probe(ctx context.Context) Status {
	gen, st, needProbe := g.precheck()
	if !needProbe {
		g.set(gen, st)
		return st
	}
	return g.probe(ctx, gen)
}

func (g *Gate) precheck() (gen uint64, st Status, needProbe bool) {
	g.mu.Lock()
	gen, userID, guest := g.gen, g.userID, g.guest
	g.mu.Unlock()

	switch {
	case guest:
		return gen, disabled(), false
	case userID == "":
		return gen, Status{State: NoAccount, Reason: "Sign in to sync your data"}, false
	case g.network != nil && !g.network.Online():
		return gen, Status{State: TemporarilyUnavailable, Reason: "You are offline"}, false
	}
	return gen, Status{}, true
}

func (g *Gate) probe(ctx context.Context, gen uint64) Status {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		status api.AccountStatus
		err    error
	}
	done := make(chan result, 1)
	go func() {
		s, err := g.prober.AccountStatus(ctx)
		done <- result{s, err}
	}()

	var st Status
	select {
	case r := <-done:
		st = resolve(r.status, r.err)
	case <-ctx.Done():
		st = resolve("", ctx.Err())
	}
	g.set(gen, st)
	return st
}

func resolve(status api.AccountStatus, err error) Status {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || connect.CodeOf(err) == connect.CodeDeadlineExceeded {
			return Status{State: Error, Reason: "Timed out checking your account", Err: ErrProbeTimeout}
		}
		return Status{State: Error, Reason: fmt.Sprintf("Could not check your account: %v", err), Err: err}
	}
	switch status {
	case api.AccountAvailable:
		return Status{State: Available}
	case api.AccountNoAccount:
		return Status{State: NoAccount, Reason: "Sign in to sync your data"}
	case api.AccountRestricted:
		return Status{State: Restricted, Reason: "Sync is restricted for this account"}
	case api.AccountTemporarilyUnavailable:
		return Status{State: TemporarilyUnavailable, Reason: "Sync is temporarily unavailable"}
	default:
		return Status{State: Undetermined, Reason: "Could not determine account status"}
	}
}

func checking() Status {
	return Status{State: Undetermined, Reason: "Checking sync availability"}
}

func disabled() Status {
	return Status{State: Disabled, Reason: "Sync is disabled for guest sessions"}
}

// set publishes st unless the identity changed since gen was read.
func (g *Gate) set(gen uint64, st Status) {
	g.mu.Lock()
	if gen != g.gen {
		g.mu.Unlock()
		return
	}
	prev := g.status
	g.status = st
	g.mu.Unlock()

	if prev.State != st.State || prev.Reason != st.Reason {
		g.logger.Info("Sync availability changed", "state", st.State.String(), "reason", st.Reason)
	}
	g.changes.Publish(st)
}

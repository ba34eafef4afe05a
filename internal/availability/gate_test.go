package availability

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/ledgerly/pkg/api"
)

type fakeProber struct {
	calls  atomic.Int32
	status api.AccountStatus
	err    error
	block  bool
	hold   chan struct{}
}

func (f *fakeProber) AccountStatus(ctx context.Context) (api.AccountStatus, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.hold != nil {
		<-f.hold
	}
	return f.status, f.err
}

type staticNetwork bool

func (n staticNetwork) Online() bool { return bool(n) }

func fastOptions() Options {
	return Options{ProbeTimeout: 50 * time.Millisecond, Debounce: 10 * time.Millisecond}
}

func signedIn(g *Gate, userID string) {
	g.mu.Lock()
	g.userID = userID
	g.mu.Unlock()
}

func TestGuestIsDisabledWithoutProbe(t *testing.T) {
	p := &fakeProber{status: api.AccountAvailable}
	g := NewGate(p, nil, fastOptions(), nil)

	g.OnIdentityChanged("", true)
	assert.Equal(t, Disabled, g.Status().State)
	assert.False(t, g.IsAvailable())
	assert.NotEmpty(t, g.Reason())

	st := g.Probe(context.Background())
	assert.Equal(t, Disabled, st.State)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), p.calls.Load())
	assert.Equal(t, Disabled, g.Status().State)
}

func TestSignedOutIsNoAccount(t *testing.T) {
	p := &fakeProber{status: api.AccountAvailable}
	g := NewGate(p, nil, fastOptions(), nil)

	st := g.CheckAvailability()
	assert.Equal(t, NoAccount, st.State)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestOfflineIsTemporarilyUnavailable(t *testing.T) {
	p := &fakeProber{status: api.AccountAvailable}
	g := NewGate(p, staticNetwork(false), fastOptions(), nil)
	signedIn(g, "user-1")

	assert.Equal(t, TemporarilyUnavailable, g.Probe(context.Background()).State)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestProbeResolvesAccountStatus(t *testing.T) {
	tests := []struct {
		name   string
		status api.AccountStatus
		err    error
		want   State
	}{
		{"available", api.AccountAvailable, nil, Available},
		{"no account", api.AccountNoAccount, nil, NoAccount},
		{"restricted", api.AccountRestricted, nil, Restricted},
		{"temporarily unavailable", api.AccountTemporarilyUnavailable, nil, TemporarilyUnavailable},
		{"could not determine", api.AccountCouldNotDetermine, nil, Undetermined},
		{"transport error", "", errors.New("dial tcp: refused"), Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(&fakeProber{status: tt.status, err: tt.err}, staticNetwork(true), fastOptions(), nil)
			signedIn(g, "user-1")

			st := g.Probe(context.Background())
			assert.Equal(t, tt.want, st.State)
			assert.Equal(t, tt.want == Available, g.IsAvailable())
			if tt.want == Available {
				assert.Empty(t, st.Reason)
			} else {
				assert.NotEmpty(t, st.Reason)
			}
		})
	}
}

func TestProbeTimeout(t *testing.T) {
	g := NewGate(&fakeProber{block: true}, nil, fastOptions(), nil)
	signedIn(g, "user-1")

	start := time.Now()
	st := g.Probe(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Error, st.State)
	assert.ErrorIs(t, st.Err, ErrProbeTimeout)
}

func TestCheckAvailabilityDoesNotBlock(t *testing.T) {
	p := &fakeProber{status: api.AccountAvailable, hold: make(chan struct{})}
	g := NewGate(p, nil, fastOptions(), nil)
	signedIn(g, "user-1")
	ch, cancel := g.Subscribe()
	defer cancel()

	st := g.CheckAvailability()
	assert.Equal(t, Undetermined, st.State)
	close(p.hold)

	select {
	case got := <-ch:
		assert.Equal(t, Available, got.State)
	case <-time.After(time.Second):
		t.Fatal("no status published")
	}
	assert.True(t, g.IsAvailable())
}

func TestIdentityChangeIsDebounced(t *testing.T) {
	p := &fakeProber{status: api.AccountAvailable}
	g := NewGate(p, nil, fastOptions(), nil)

	g.OnIdentityChanged("user-1", false)
	g.OnIdentityChanged("user-2", false)
	g.OnIdentityChanged("user-3", false)

	require.Eventually(t, g.IsAvailable, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), p.calls.Load())

	g.OnIdentityChanged("", false)
	require.Eventually(t, func() bool { return g.Status().State == NoAccount }, time.Second, 5*time.Millisecond)
}

type switchNetwork struct{ online atomic.Bool }

func (n *switchNetwork) Online() bool { return n.online.Load() }

func TestIdentityChangeClosesGateImmediately(t *testing.T) {
	p := &fakeProber{status: api.AccountAvailable}
	g := NewGate(p, nil, fastOptions(), nil)
	signedIn(g, "user-1")
	require.True(t, g.Refresh(context.Background()))

	g.OnIdentityChanged("user-2", false)
	assert.False(t, g.IsAvailable(), "the old account's verdict must not carry over")
	assert.Equal(t, Undetermined, g.Status().State)
	assert.NotEmpty(t, g.Reason())

	require.Eventually(t, g.IsAvailable, time.Second, 5*time.Millisecond)
}

func TestWatchReevaluatesOnTransition(t *testing.T) {
	p := &fakeProber{status: api.AccountAvailable}
	network := &switchNetwork{}
	g := NewGate(p, network, fastOptions(), nil)
	signedIn(g, "user-1")
	require.False(t, g.Refresh(context.Background()))
	assert.Equal(t, TemporarilyUnavailable, g.Status().State)

	transitions := make(chan bool, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		g.Watch(ctx, transitions)
		close(done)
	}()

	network.online.Store(true)
	transitions <- true
	require.Eventually(t, g.IsAvailable, time.Second, 5*time.Millisecond)

	network.online.Store(false)
	transitions <- false
	require.Eventually(t, func() bool { return g.Status().State == TemporarilyUnavailable }, time.Second, 5*time.Millisecond)

	close(transitions)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after transitions closed")
	}
}

func TestRefreshWaitsForVerdict(t *testing.T) {
	network := &switchNetwork{}
	g := NewGate(&fakeProber{status: api.AccountAvailable}, network, fastOptions(), nil)
	signedIn(g, "user-1")

	assert.False(t, g.Refresh(context.Background()))
	network.online.Store(true)
	assert.True(t, g.Refresh(context.Background()))
	assert.True(t, g.IsAvailable())
}

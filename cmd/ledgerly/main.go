// Command ledgerly is the local-first client: it edits the local ledger and
// keeps it in sync with the record server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mmynk/ledgerly/internal/availability"
	"github.com/mmynk/ledgerly/internal/config"
	"github.com/mmynk/ledgerly/internal/connectivity"
	"github.com/mmynk/ledgerly/internal/ledger"
	"github.com/mmynk/ledgerly/internal/metrics"
	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/remote"
	"github.com/mmynk/ledgerly/internal/storage/sqlite"
	"github.com/mmynk/ledgerly/internal/syncer"
	"github.com/mmynk/ledgerly/pkg/logging"
)

var (
	configFlag string

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "ledgerly",
	Short:         "Track bills and savings goals, synced across devices",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.Path(configFlag))
		if err != nil {
			return err
		}
		logger = logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to YAML config file (default $"+config.EnvConfigPath+")")
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "ledger", Title: "Ledger:"},
		&cobra.Group{ID: "account", Title: "Account:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the wired client.
type app struct {
	store   *sqlite.SQLiteStore
	session config.Session
	monitor *connectivity.Monitor
	gate    *availability.Gate
	sync    *syncer.Orchestrator
	ledger  *ledger.Service

	mutated bool
}

// openApp wires the local store, the remote adapter and the orchestrator for
// the persisted session. reg may be nil.
func openApp(reg prometheus.Registerer) (*app, error) {
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	session, err := config.LoadSession(cfg.SessionPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	checker, err := connectivity.NewDialChecker(cfg.RemoteURL, cfg.Sync.ProbeTimeout)
	if err != nil {
		store.Close()
		return nil, err
	}
	monitor := connectivity.NewMonitor(checker, cfg.Sync.ConnectivityInterval, logger)

	client := remote.NewConnectClient(http.DefaultClient, cfg.RemoteURL, func() string { return session.Token })
	gate := availability.NewGate(client, monitor, availability.Options{
		ProbeTimeout: cfg.Sync.ProbeTimeout,
		Debounce:     cfg.Sync.IdentityDebounce,
	}, logger)
	adapter := remote.NewAdapter(client, gate, logger)

	orch := syncer.New(store, adapter, gate, syncer.Config{
		Interval:          cfg.Sync.Interval,
		MinGap:            cfg.Sync.MinGap,
		UploadConcurrency: cfg.Sync.UploadConcurrency,
		BillWindow:        cfg.Sync.BillWindow,
		SavingsGoalWindow: cfg.Sync.SavingsGoalWindow,
	},
		syncer.WithLogger(logger),
		syncer.WithMetrics(metrics.NewSync(reg)),
		syncer.WithConnectivity(monitor),
	)

	gate.OnIdentityChanged(session.UserID, session.Guest)

	a := &app{
		store:   store,
		session: session,
		monitor: monitor,
		gate:    gate,
		sync:    orch,
	}
	a.ledger = ledger.NewService(store, ledger.NotifierFunc(func(kind models.Kind) {
		a.mutated = true
		orch.NotifyMutation(kind)
	}), logger)
	return a, nil
}

// resolve checks connectivity and waits for the gate's verdict.
func (a *app) resolve(ctx context.Context) availability.Status {
	a.monitor.Check(ctx)
	return a.gate.Probe(ctx)
}

// pushMutation runs a best-effort sync after a local edit. Failures are
// logged; the next sync retries.
func (a *app) pushMutation(ctx context.Context) {
	if st := a.resolve(ctx); st.State != availability.Available {
		logger.Debug("Change kept local", "reason", st.Reason)
		return
	}
	if err := a.sync.RequestSync(ctx, syncer.TriggerMutation); err != nil {
		logger.Warn("Sync after change failed", "error", err)
	}
	a.recordSync(a.sync.Status())
}

// recordSync persists the completion time of a successful sync.
func (a *app) recordSync(st syncer.Status) {
	if st.LastSyncDate.IsZero() || !st.LastSyncDate.After(a.session.LastSync) {
		return
	}
	a.session.LastSync = st.LastSyncDate
	if err := config.SaveSession(cfg.SessionPath, a.session); err != nil {
		logger.Warn("Failed to record last sync", "error", err)
	}
}

func (a *app) Close() error {
	return a.store.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}

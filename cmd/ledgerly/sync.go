package main

import (
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mmynk/ledgerly/internal/availability"
	"github.com/mmynk/ledgerly/internal/syncer"
)

var metricsAddr string

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "sync",
	Short:   "Keep the ledger in sync until interrupted",
	Long: `Run syncs at launch, on a timer, after local edits and whenever the
network comes back. Automatic syncs are throttled by sync.min_gap.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		a, err := openApp(reg)
		if err != nil {
			return err
		}
		defer a.Close()

		if metricsAddr != "" {
			srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Metrics server failed", "error", err)
				}
			}()
			defer srv.Close()
		}

		updates, cancel := a.sync.Subscribe()
		defer cancel()
		go func() {
			for st := range updates {
				logger.Debug("Sync status", "phase", st.Phase.String(), "reason", st.Reason)
				a.recordSync(st)
			}
		}()

		transitions, unwatch := a.monitor.Subscribe()
		defer unwatch()
		go a.gate.Watch(ctx, transitions)

		go a.monitor.Run(ctx)
		st := a.resolve(ctx)
		logger.Info("Sync availability", "state", st.State.String(), "reason", st.Reason)

		a.sync.Run(ctx)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if st := a.resolve(cmd.Context()); st.State != availability.Available {
			return fmt.Errorf("sync unavailable: %s", st.Reason)
		}
		err = a.sync.RequestSync(cmd.Context(), syncer.TriggerManual)
		st := a.sync.Status()
		a.recordSync(st)
		fmt.Printf("inserted %d, updated %d, deleted %d, unchanged %d, duplicates removed %d, upload failures %d\n",
			st.LastResult.Inserted, st.LastResult.Updated, st.LastResult.Deleted, st.LastResult.Unchanged, st.LastResult.Deduplicated, st.UploadFailures)
		return err
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show account and sync availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		switch {
		case a.session.Guest:
			fmt.Println("account:   guest")
		case a.session.UserID == "":
			fmt.Println("account:   signed out")
		default:
			fmt.Printf("account:   %s\n", a.session.Email)
		}
		st := a.resolve(cmd.Context())
		fmt.Printf("sync:      %s\n", st.State)
		if st.Reason != "" {
			fmt.Printf("reason:    %s\n", st.Reason)
		}
		fmt.Printf("last sync: %s\n", formatTime(a.session.LastSync))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(runCmd, syncCmd, statusCmd)
}

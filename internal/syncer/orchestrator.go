// Package syncer sequences upload, fetch, merge and duplicate cleanup
// between the local store and the remote store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/ledgerly/internal/dedup"
	"github.com/mmynk/ledgerly/internal/merge"
	"github.com/mmynk/ledgerly/internal/metrics"
	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/notify"
	"github.com/mmynk/ledgerly/internal/remote"
	"github.com/mmynk/ledgerly/internal/storage"
	"github.com/mmynk/ledgerly/pkg/api"
)

// Remote is the typed remote store.
type Remote interface {
	SaveBill(ctx context.Context, b *models.Bill) (api.SaveAck, error)
	SaveSavingsGoal(ctx context.Context, g *models.SavingsGoal) (api.SaveAck, error)
	SaveSettings(ctx context.Context, s *models.UserSettings) (api.SaveAck, error)
	FetchBills(ctx context.Context) ([]*models.Bill, error)
	FetchSavingsGoals(ctx context.Context) ([]*models.SavingsGoal, error)
	FetchSettings(ctx context.Context) (*models.UserSettings, error)
	Delete(ctx context.Context, t models.Tombstone) (api.SaveAck, error)
	FetchDeletions(ctx context.Context) ([]models.Tombstone, error)
}

// Gate reports whether remote sync is permitted.
type Gate interface {
	IsAvailable() bool
	Reason() string
	// Refresh re-evaluates availability now and reports the outcome.
	Refresh(ctx context.Context) bool
}

// Connectivity publishes reachability transitions.
type Connectivity interface {
	Subscribe() (<-chan bool, func())
}

// Config holds the scheduling and merge parameters.
type Config struct {
	// Interval between timer-triggered attempts.
	Interval time.Duration
	// MinGap is the minimum time between two automatic attempts.
	MinGap time.Duration
	// UploadConcurrency bounds in-flight record uploads.
	UploadConcurrency int

	BillWindow        time.Duration
	SavingsGoalWindow time.Duration
}

// DefaultConfig returns the standard schedule.
func DefaultConfig() Config {
	return Config{
		Interval:          300 * time.Second,
		MinGap:            60 * time.Second,
		UploadConcurrency: 8,
		BillWindow:        merge.DefaultBillWindow,
		SavingsGoalWindow: merge.DefaultSavingsGoalWindow,
	}
}

// Scorers selects the duplicate ranking strategy per kind.
type Scorers struct {
	Bill        dedup.Scorer[*models.Bill]
	SavingsGoal dedup.Scorer[*models.SavingsGoal]
	Settings    dedup.Scorer[*models.UserSettings]
}

// DefaultScorers returns the completeness-and-recency scorers.
func DefaultScorers() Scorers {
	return Scorers{
		Bill:        dedup.ScorerFunc[*models.Bill](dedup.BillScore),
		SavingsGoal: dedup.ScorerFunc[*models.SavingsGoal](dedup.SavingsGoalScore),
		Settings:    dedup.ScorerFunc[*models.UserSettings](dedup.SettingsScore),
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics records sync activity in m.
func WithMetrics(m *metrics.Sync) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithScorers replaces the duplicate ranking strategies.
func WithScorers(s Scorers) Option {
	return func(o *Orchestrator) { o.scorers = s }
}

// WithConnectivity makes Run sync when the network comes back.
func WithConnectivity(c Connectivity) Option {
	return func(o *Orchestrator) { o.network = c }
}

// Orchestrator runs sync cycles one at a time. Requests made while a cycle
// is running are rejected, not queued.
type Orchestrator struct {
	store   storage.LocalStore
	remote  Remote
	gate    Gate
	network Connectivity
	cfg     Config
	scorers Scorers
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Sync

	bills    *merge.Engine[*models.Bill]
	goals    *merge.Engine[*models.SavingsGoal]
	settings *merge.Engine[*models.UserSettings]

	mu          sync.Mutex
	status      Status
	lastAttempt time.Time

	mutations chan models.Kind
	updates   notify.Broadcaster[Status]
	requests  notify.Broadcaster[Trigger]
}

// New creates an orchestrator. Non-positive durations and limits in cfg take
// their defaults, except MinGap where zero disables the throttle.
func New(store storage.LocalStore, rs Remote, gate Gate, cfg Config, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MinGap < 0 {
		cfg.MinGap = 0
	}
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = def.UploadConcurrency
	}
	if cfg.BillWindow <= 0 {
		cfg.BillWindow = def.BillWindow
	}
	if cfg.SavingsGoalWindow <= 0 {
		cfg.SavingsGoalWindow = def.SavingsGoalWindow
	}

	o := &Orchestrator{
		store:     store,
		remote:    rs,
		gate:      gate,
		cfg:       cfg,
		scorers:   DefaultScorers(),
		now:       time.Now,
		logger:    slog.Default(),
		mutations: make(chan models.Kind, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = metrics.NewSync(nil)
	}

	o.bills = merge.NewEngine(cfg.BillWindow, dedup.NewResolver(o.scorers.Bill, o.now, o.logger), o.logger)
	o.goals = merge.NewEngine(cfg.SavingsGoalWindow, dedup.NewResolver(o.scorers.SavingsGoal, o.now, o.logger), o.logger)
	o.settings = merge.NewEngine(0, dedup.NewResolver(o.scorers.Settings, o.now, o.logger), o.logger)
	return o
}

// Status returns a snapshot of the orchestrator state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := o.status
	o.mu.Unlock()
	st.Available = o.gate.IsAvailable()
	if !st.Available {
		st.Reason = o.gate.Reason()
	}
	return st
}

// Subscribe returns a channel receiving the status after every change.
func (o *Orchestrator) Subscribe() (<-chan Status, func()) {
	return o.updates.Subscribe()
}

// OnSyncRequested returns a channel receiving the trigger of every accepted
// sync request, for views that refresh alongside a sync.
func (o *Orchestrator) OnSyncRequested() (<-chan Trigger, func()) {
	return o.requests.Subscribe()
}

// NotifyMutation records that the user changed a record. Run turns it into
// a throttled sync.
func (o *Orchestrator) NotifyMutation(kind models.Kind) {
	select {
	case o.mutations <- kind:
	default:
	}
}

// RequestSync runs one full cycle and returns its error. When sync is
// unavailable it returns remote.ErrUnavailable and leaves the state
// untouched.
func (o *Orchestrator) RequestSync(ctx context.Context, trigger Trigger) error {
	if !o.gate.IsAvailable() {
		return fmt.Errorf("%w: %s", remote.ErrUnavailable, o.gate.Reason())
	}

	if err := o.begin(trigger); err != nil {
		return err
	}
	o.requests.Publish(trigger)
	o.logger.Info("Sync started", "trigger", string(trigger))

	start := time.Now()
	res, uploadFailures, err := o.cycle(ctx)
	o.finish(trigger, res, uploadFailures, err)
	o.metrics.ObservePhase("total", start)
	return err
}

func (o *Orchestrator) begin(trigger Trigger) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status.Syncing {
		return ErrAlreadyInProgress
	}
	now := o.now()
	if trigger.Automatic() && !o.lastAttempt.IsZero() && now.Sub(o.lastAttempt) < o.cfg.MinGap {
		return ErrThrottled
	}
	o.lastAttempt = now
	o.status.Syncing = true
	o.status.LastTrigger = trigger
	o.setPhaseLocked(Uploading)
	return nil
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setPhaseLocked(p)
}

func (o *Orchestrator) setPhaseLocked(p Phase) {
	o.status.Phase = p
	o.updates.Publish(o.status)
}

func (o *Orchestrator) finish(trigger Trigger, res merge.Result, uploadFailures int, err error) {
	result := "success"
	o.mu.Lock()
	o.status.Syncing = false
	o.status.UploadFailures = uploadFailures
	if err != nil {
		result = "failure"
		o.status.LastError = err
		o.setPhaseLocked(Failed)
		o.setPhaseLocked(Idle)
	} else {
		o.status.LastError = nil
		o.status.LastSyncDate = o.now()
		o.status.LastResult = res
		o.setPhaseLocked(Idle)
	}
	o.mu.Unlock()

	o.metrics.Attempts.WithLabelValues(string(trigger), result).Inc()
	if err != nil {
		o.logger.Warn("Sync failed", "trigger", string(trigger), "error", err)
		return
	}
	o.logger.Info("Sync finished",
		"trigger", string(trigger),
		"inserted", res.Inserted,
		"updated", res.Updated,
		"deleted", res.Deleted,
		"deduplicated", res.Deduplicated,
		"upload_failures", uploadFailures,
	)
}

func (o *Orchestrator) cycle(ctx context.Context) (merge.Result, int, error) {
	start := time.Now()
	uploadFailures, err := o.upload(ctx)
	o.metrics.ObservePhase(Uploading.String(), start)
	if err != nil {
		return merge.Result{}, uploadFailures, err
	}

	res, err := o.fetchAndMerge(ctx)
	return res, uploadFailures, err
}

// uploadTally collects per-record upload outcomes across goroutines.
type uploadTally struct {
	mu          sync.Mutex
	succeeded   int
	failed      int
	errs        error
	unavailable bool
}

func (t *uploadTally) record(kind models.Kind, id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		t.succeeded++
		return
	}
	t.failed++
	t.errs = multierr.Append(t.errs, fmt.Errorf("%s %s: %w", kind, id, err))
	if errors.Is(err, remote.ErrUnavailable) {
		t.unavailable = true
	}
}

func uploadAll[T models.Syncable[T]](ctx context.Context, o *Orchestrator, g *errgroup.Group, tally *uploadTally, kind models.Kind, records []T, save func(context.Context, T) (api.SaveAck, error)) {
	for _, rec := range records {
		g.Go(func() error {
			_, err := save(ctx, rec)
			tally.record(kind, rec.SyncID(), err)
			result := "ok"
			if err != nil {
				result = "error"
				o.logger.Warn("Upload failed", "kind", string(kind), "id", rec.SyncID(), "error", err)
			}
			o.metrics.Uploads.WithLabelValues(string(kind), result).Inc()
			return nil
		})
	}
}

// deleteAll pushes local deletions. A tombstone is cleared once the remote
// has answered, whether or not it kept a newer copy: a newer copy comes
// back with the fetch.
func deleteAll(ctx context.Context, o *Orchestrator, g *errgroup.Group, tally *uploadTally, kind models.Kind, tombs []models.Tombstone, forget func(context.Context, string) error) {
	for _, t := range tombs {
		g.Go(func() error {
			ack, err := o.remote.Delete(ctx, t)
			if err == nil {
				err = forget(ctx, t.ID)
			}
			tally.record(kind, t.ID, err)
			result := "deleted"
			switch {
			case err != nil:
				result = "error"
				o.logger.Warn("Delete upload failed", "kind", string(kind), "id", t.ID, "error", err)
			case !ack.Saved:
				result = "superseded"
				o.logger.Debug("Remote copy newer than delete", "kind", string(kind), "id", t.ID)
			}
			o.metrics.Uploads.WithLabelValues(string(kind), result).Inc()
			return nil
		})
	}
}

// upload pushes every local record and every pending deletion. Record
// failures are reported in the returned count; only losing availability
// fails the phase.
func (o *Orchestrator) upload(ctx context.Context) (int, error) {
	bills, err := o.store.Bills().List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list bills: %w", err)
	}
	goals, err := o.store.SavingsGoals().List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list savings goals: %w", err)
	}
	settings, err := o.store.Settings().List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list settings: %w", err)
	}

	tombs := make(map[models.Kind][]models.Tombstone, len(models.Kinds))
	for kind, list := range map[models.Kind]func(context.Context) ([]models.Tombstone, error){
		models.KindBill:         o.store.Bills().Tombstones,
		models.KindSavingsGoal:  o.store.SavingsGoals().Tombstones,
		models.KindUserSettings: o.store.Settings().Tombstones,
	} {
		if tombs[kind], err = list(ctx); err != nil {
			return 0, fmt.Errorf("failed to list %s tombstones: %w", kind, err)
		}
	}

	var (
		g     errgroup.Group
		tally uploadTally
	)
	g.SetLimit(o.cfg.UploadConcurrency)
	uploadAll(ctx, o, &g, &tally, models.KindBill, bills, o.remote.SaveBill)
	uploadAll(ctx, o, &g, &tally, models.KindSavingsGoal, goals, o.remote.SaveSavingsGoal)
	uploadAll(ctx, o, &g, &tally, models.KindUserSettings, settings, o.remote.SaveSettings)
	deleteAll(ctx, o, &g, &tally, models.KindBill, tombs[models.KindBill], o.store.Bills().ClearTombstone)
	deleteAll(ctx, o, &g, &tally, models.KindSavingsGoal, tombs[models.KindSavingsGoal], o.store.SavingsGoals().ClearTombstone)
	deleteAll(ctx, o, &g, &tally, models.KindUserSettings, tombs[models.KindUserSettings], o.store.Settings().ClearTombstone)
	_ = g.Wait()

	if tally.failed == 0 {
		return 0, nil
	}
	partial := &PartialFailure{Succeeded: tally.succeeded, Failed: tally.failed, Err: tally.errs}
	if tally.unavailable {
		return tally.failed, fmt.Errorf("upload aborted: %w", partial)
	}
	o.logger.Warn("Upload finished with failures", "succeeded", tally.succeeded, "failed", tally.failed)
	return tally.failed, nil
}

// fetchAndMerge fetches the three kinds and the remote deletions
// concurrently and merges each kind in its own local transaction. A failing
// kind does not stop the others.
func (o *Orchestrator) fetchAndMerge(ctx context.Context) (merge.Result, error) {
	o.setPhase(Fetching)
	start := time.Now()

	var (
		g                         errgroup.Group
		bills                     []*models.Bill
		goals                     []*models.SavingsGoal
		settings                  *models.UserSettings
		deletions                 []models.Tombstone
		billErr, goalErr, settErr error
		delErr                    error
	)
	g.Go(func() error {
		bills, billErr = o.remote.FetchBills(ctx)
		return nil
	})
	g.Go(func() error {
		goals, goalErr = o.remote.FetchSavingsGoals(ctx)
		return nil
	})
	g.Go(func() error {
		settings, settErr = o.remote.FetchSettings(ctx)
		return nil
	})
	g.Go(func() error {
		deletions, delErr = o.remote.FetchDeletions(ctx)
		return nil
	})
	_ = g.Wait()
	o.metrics.ObservePhase(Fetching.String(), start)

	o.setPhase(Merging)
	start = time.Now()
	var (
		total merge.Result
		errs  error
	)

	// Without the deletions the live records still merge; they never
	// include a deleted record.
	deleted := make(map[models.Kind][]models.Tombstone)
	if delErr != nil {
		errs = multierr.Append(errs, fmt.Errorf("fetch deletions: %w", delErr))
	}
	for _, t := range deletions {
		deleted[t.Kind] = append(deleted[t.Kind], t)
	}

	if billErr != nil {
		errs = multierr.Append(errs, fmt.Errorf("fetch bills: %w", billErr))
	} else {
		res, err := mergeKind(ctx, o, models.KindBill, o.bills, storage.LocalStore.Bills, bills, deleted[models.KindBill])
		total.Add(res)
		errs = multierr.Append(errs, err)
	}

	if goalErr != nil {
		errs = multierr.Append(errs, fmt.Errorf("fetch savings goals: %w", goalErr))
	} else {
		res, err := mergeKind(ctx, o, models.KindSavingsGoal, o.goals, storage.LocalStore.SavingsGoals, goals, deleted[models.KindSavingsGoal])
		total.Add(res)
		errs = multierr.Append(errs, err)
	}

	if settErr != nil {
		errs = multierr.Append(errs, fmt.Errorf("fetch settings: %w", settErr))
	} else {
		var remoteSettings []*models.UserSettings
		if settings != nil {
			remoteSettings = append(remoteSettings, settings)
		}
		res, err := mergeKind(ctx, o, models.KindUserSettings, o.settings, storage.LocalStore.Settings, remoteSettings, deleted[models.KindUserSettings])
		total.Add(res)
		errs = multierr.Append(errs, err)
	}

	o.metrics.ObservePhase(Merging.String(), start)
	return total, errs
}

// mergeKind applies remote deletions and merges one kind inside a local
// transaction, so the store's mutation lock is held for the whole
// delete-merge-dedup sequence.
func mergeKind[T models.Syncable[T]](
	ctx context.Context,
	o *Orchestrator,
	kind models.Kind,
	engine *merge.Engine[T],
	collection func(storage.LocalStore) storage.Collection[T],
	records []T,
	deletions []models.Tombstone,
) (merge.Result, error) {
	var res merge.Result
	err := o.store.RunInTx(ctx, func(tx storage.LocalStore) error {
		removed, err := engine.ApplyDeletions(ctx, collection(tx), deletions)
		if err != nil {
			return err
		}
		res, err = engine.Merge(ctx, collection(tx), records)
		res.Deleted = removed
		return err
	})
	if err != nil {
		return merge.Result{}, fmt.Errorf("merge %s: %w", kind, err)
	}

	o.metrics.MergeChanges.WithLabelValues(string(kind), "insert").Add(float64(res.Inserted))
	o.metrics.MergeChanges.WithLabelValues(string(kind), "update").Add(float64(res.Updated))
	o.metrics.MergeChanges.WithLabelValues(string(kind), "delete").Add(float64(res.Deleted))
	o.metrics.DuplicatesRemoved.WithLabelValues(string(kind)).Add(float64(res.Deduplicated))
	return res, nil
}

// Run drives automatic syncs until ctx is done: once at launch, then on
// the timer, after mutations, and when connectivity returns.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	var reconnects <-chan bool
	if o.network != nil {
		ch, cancel := o.network.Subscribe()
		defer cancel()
		reconnects = ch
	}

	o.automatic(ctx, TriggerLaunch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.automatic(ctx, TriggerTimer)
		case <-o.mutations:
			o.automatic(ctx, TriggerMutation)
		case online, ok := <-reconnects:
			if !ok {
				reconnects = nil
				continue
			}
			if online {
				o.automatic(ctx, TriggerReconnect)
			}
		}
	}
}

func (o *Orchestrator) automatic(ctx context.Context, trigger Trigger) {
	// The gate's verdict may predate the network coming back.
	if trigger != TriggerMutation && !o.gate.IsAvailable() {
		o.gate.Refresh(ctx)
	}
	err := o.RequestSync(ctx, trigger)
	switch {
	case err == nil:
	case errors.Is(err, ErrThrottled), errors.Is(err, ErrAlreadyInProgress), errors.Is(err, remote.ErrUnavailable):
		o.logger.Debug("Automatic sync skipped", "trigger", string(trigger), "reason", err)
	default:
		o.logger.Warn("Automatic sync failed", "trigger", string(trigger), "error", err)
	}
}

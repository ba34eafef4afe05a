// Package dedup collapses local records that describe the same real-world
// item into one.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.uber.org/multierr"

	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/storage"
)

// Resolver groups records by conflict key and keeps the best of each group.
type Resolver[T models.Syncable[T]] struct {
	scorer Scorer[T]
	now    func() time.Time
	logger *slog.Logger
}

// NewResolver creates a resolver. now defaults to time.Now.
func NewResolver[T models.Syncable[T]](scorer Scorer[T], now func() time.Time, logger *slog.Logger) *Resolver[T] {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver[T]{scorer: scorer, now: now, logger: logger}
}

// Rank returns the records ordered best first: latest UpdatedAt, then
// highest score, then smallest ID. The input is not modified.
func (r *Resolver[T]) Rank(records []T) []T {
	now := r.now()
	ranked := make([]T, len(records))
	copy(ranked, records)
	scores := make(map[string]int, len(ranked))
	for _, rec := range ranked {
		scores[rec.SyncID()] = r.scorer.Score(rec, now)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if !a.LastUpdated().Equal(b.LastUpdated()) {
			return a.LastUpdated().After(b.LastUpdated())
		}
		if sa, sb := scores[a.SyncID()], scores[b.SyncID()]; sa != sb {
			return sa > sb
		}
		return a.SyncID() < b.SyncID()
	})
	return ranked
}

// Plan splits records into the ones to keep (one per conflict key, in
// first-seen key order) and the ones to delete.
func (r *Resolver[T]) Plan(records []T) (keep, remove []T) {
	groups := make(map[models.ConflictKey][]T)
	var order []models.ConflictKey
	for _, rec := range records {
		key := rec.ConflictKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			keep = append(keep, group[0])
			continue
		}
		ranked := r.Rank(group)
		keep = append(keep, ranked[0])
		remove = append(remove, ranked[1:]...)
	}
	return keep, remove
}

// Resolve deletes every duplicate in coll and returns how many were
// deleted. A failed delete does not stop the others; the failures are
// returned together.
func (r *Resolver[T]) Resolve(ctx context.Context, coll storage.Collection[T]) (int, error) {
	records, err := coll.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list records: %w", err)
	}

	_, remove := r.Plan(records)
	var (
		deleted int
		errs    error
	)
	for _, rec := range remove {
		if err := coll.Delete(ctx, rec); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to delete duplicate %s: %w", rec.SyncID(), err))
			continue
		}
		deleted++
		r.logger.Debug("Removed duplicate", "id", rec.SyncID(), "key", rec.ConflictKey().String())
	}
	return deleted, errs
}

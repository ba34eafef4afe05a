// Package merge reconciles a fetched remote collection into the local store.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/ledgerly/internal/dedup"
	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/storage"
)

// Default near-duplicate windows, compared against the due date for bills and
// the target date for savings goals.
const (
	DefaultBillWindow        = 60 * time.Second
	DefaultSavingsGoalWindow = 24 * time.Hour
)

// Result counts what a merge did to the local collection.
type Result struct {
	Inserted     int
	Updated      int
	Unchanged    int
	Deduplicated int
	// Deleted counts local records removed because another device deleted
	// them.
	Deleted int
}

// Changes is the number of inserts, updates and remote deletions applied.
func (r Result) Changes() int {
	return r.Inserted + r.Updated + r.Deleted
}

// Add accumulates o into r.
func (r *Result) Add(o Result) {
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
	r.Deduplicated += o.Deduplicated
	r.Deleted += o.Deleted
}

// Engine merges remote records of one kind into a local collection.
type Engine[T models.Syncable[T]] struct {
	window   time.Duration
	resolver *dedup.Resolver[T]
	logger   *slog.Logger
}

// NewEngine creates an engine. window is the near-duplicate tolerance for
// records that match neither by ID nor by conflict key. The resolver runs
// after every merge.
func NewEngine[T models.Syncable[T]](window time.Duration, resolver *dedup.Resolver[T], logger *slog.Logger) *Engine[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine[T]{window: window, resolver: resolver, logger: logger}
}

// index finds the local counterpart of a remote record.
type index[T models.Syncable[T]] struct {
	byID  map[string]T
	byKey map[models.ConflictKey]T
	all   []T
}

func newIndex[T models.Syncable[T]](ranked []T) *index[T] {
	idx := &index[T]{
		byID:  make(map[string]T, len(ranked)),
		byKey: make(map[models.ConflictKey]T, len(ranked)),
	}
	for _, rec := range ranked {
		idx.add(rec)
	}
	return idx
}

// add registers rec. The first record seen for a key keeps it.
func (idx *index[T]) add(rec T) {
	idx.byID[rec.SyncID()] = rec
	if _, ok := idx.byKey[rec.ConflictKey()]; !ok {
		idx.byKey[rec.ConflictKey()] = rec
	}
	idx.all = append(idx.all, rec)
}

// rekey moves rec, already indexed under old, to its current conflict key.
// Another record that shared old takes the slot over.
func (idx *index[T]) rekey(rec T, old models.ConflictKey) {
	if cur, ok := idx.byKey[old]; ok && cur.SyncID() == rec.SyncID() {
		delete(idx.byKey, old)
		for _, other := range idx.all {
			if other.SyncID() != rec.SyncID() && other.ConflictKey() == old {
				idx.byKey[old] = other
				break
			}
		}
	}
	if _, ok := idx.byKey[rec.ConflictKey()]; !ok {
		idx.byKey[rec.ConflictKey()] = rec
	}
}

func (idx *index[T]) match(remote T, window time.Duration) (T, bool) {
	if local, ok := idx.byID[remote.SyncID()]; ok {
		return local, true
	}
	if local, ok := idx.byKey[remote.ConflictKey()]; ok {
		return local, true
	}
	for _, local := range idx.all {
		if local.NearDuplicate(remote, window) {
			return local, true
		}
	}
	var zero T
	return zero, false
}

// Merge applies remote to coll: a matched local record is overwritten when
// the remote copy is strictly newer and left alone otherwise; an unmatched
// remote record is inserted. Duplicates are then resolved. coll should be
// bound to a transaction so a failed merge leaves no partial writes.
func (e *Engine[T]) Merge(ctx context.Context, coll storage.Collection[T], remote []T) (Result, error) {
	var res Result

	local, err := coll.List(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list local records: %w", err)
	}
	if e.resolver != nil {
		local = e.resolver.Rank(local)
	}
	idx := newIndex(local)

	deleted, err := pendingDeletions(ctx, coll)
	if err != nil {
		return res, err
	}

	// Records that match by ID are applied first so a rename on another
	// device frees its old key before key matching starts.
	byID, rest := make([]T, 0, len(remote)), make([]T, 0, len(remote))
	for _, rec := range remote {
		if _, ok := idx.byID[rec.SyncID()]; ok {
			byID = append(byID, rec)
		} else {
			rest = append(rest, rec)
		}
	}

	for _, rec := range append(byID, rest...) {
		if _, ok := deleted[rec.SyncID()]; ok {
			res.Unchanged++
			continue
		}

		existing, ok := idx.match(rec, e.window)
		if !ok {
			if err := coll.Insert(ctx, rec); err != nil {
				return res, fmt.Errorf("failed to insert %s: %w", rec.SyncID(), err)
			}
			idx.add(rec)
			res.Inserted++
			continue
		}

		if !rec.LastUpdated().After(existing.LastUpdated()) {
			res.Unchanged++
			continue
		}

		oldKey := existing.ConflictKey()
		existing.OverwriteFrom(rec)
		if err := coll.Update(ctx, existing); err != nil {
			return res, fmt.Errorf("failed to update %s: %w", existing.SyncID(), err)
		}
		idx.rekey(existing, oldKey)
		res.Updated++
	}

	if e.resolver != nil {
		n, err := e.resolver.Resolve(ctx, coll)
		res.Deduplicated = n
		if err != nil {
			return res, fmt.Errorf("failed to resolve duplicates: %w", err)
		}
	}

	e.logger.Debug("Merged remote records",
		"remote", len(remote),
		"inserted", res.Inserted,
		"updated", res.Updated,
		"unchanged", res.Unchanged,
		"deduplicated", res.Deduplicated,
		"pending_deletions", len(deleted),
	)
	return res, nil
}

// pendingDeletions returns the IDs deleted locally whose tombstones have not
// reached the remote yet. Remote copies of them are ignored.
func pendingDeletions[T any](ctx context.Context, coll storage.Collection[T]) (map[string]struct{}, error) {
	tombs, err := coll.Tombstones(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tombstones: %w", err)
	}
	ids := make(map[string]struct{}, len(tombs))
	for _, t := range tombs {
		ids[t.ID] = struct{}{}
	}
	return ids, nil
}

// ApplyDeletions removes local records deleted on another device. A local
// record updated after the deletion is kept. Tombstones for IDs that exist
// nowhere locally are ignored.
func (e *Engine[T]) ApplyDeletions(ctx context.Context, coll storage.Collection[T], deletions []models.Tombstone) (int, error) {
	if len(deletions) == 0 {
		return 0, nil
	}
	local, err := coll.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list local records: %w", err)
	}
	byID := make(map[string]T, len(local))
	for _, rec := range local {
		byID[rec.SyncID()] = rec
	}

	removed := 0
	for _, t := range deletions {
		rec, ok := byID[t.ID]
		if !ok {
			continue
		}
		if rec.LastUpdated().After(t.DeletedAt) {
			e.logger.Debug("Keeping record edited after remote delete", "id", t.ID, "deleted_at", t.DeletedAt)
			continue
		}
		if err := coll.Delete(ctx, rec); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", t.ID, err)
		}
		// The deletion came from the remote; nothing to push back.
		if err := coll.ClearTombstone(ctx, t.ID); err != nil {
			return removed, fmt.Errorf("failed to clear tombstone %s: %w", t.ID, err)
		}
		delete(byID, t.ID)
		removed++
	}
	return removed, nil
}

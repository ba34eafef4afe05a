package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/storage"
)

// deleteWithTombstone removes the row id from table and records a tombstone
// in the same transaction. A missing row leaves no tombstone.
func (s *SQLiteStore) deleteWithTombstone(ctx context.Context, table string, kind models.Kind, id string) error {
	if !s.inTx {
		return s.RunInTx(ctx, func(tx storage.LocalStore) error {
			return tx.(*SQLiteStore).deleteWithTombstone(ctx, table, kind, id)
		})
	}

	var updated int64
	err := s.q.QueryRowContext(ctx, "DELETE FROM "+table+" WHERE id = ? RETURNING updated_at", id).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}

	t := models.NewTombstone(kind, id, fromMillis(updated), time.Now())
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO tombstones (kind, id, deleted_at) VALUES (?, ?, ?)
		 ON CONFLICT (kind, id) DO UPDATE SET deleted_at = excluded.deleted_at`,
		string(kind), id, toMillis(t.DeletedAt),
	); err != nil {
		return fmt.Errorf("failed to record tombstone: %w", err)
	}
	return nil
}

// ListTombstones returns the pending deletions of one kind.
func (s *SQLiteStore) ListTombstones(ctx context.Context, kind models.Kind) ([]models.Tombstone, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, deleted_at FROM tombstones WHERE kind = ? ORDER BY deleted_at, id", string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list tombstones: %w", err)
	}
	defer rows.Close()

	var tombs []models.Tombstone
	for rows.Next() {
		var (
			id        string
			deletedAt int64
		)
		if err := rows.Scan(&id, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		tombs = append(tombs, models.Tombstone{Kind: kind, ID: id, DeletedAt: fromMillis(deletedAt)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tombstones: %w", err)
	}
	return tombs, nil
}

// ClearTombstone forgets a pending deletion.
func (s *SQLiteStore) ClearTombstone(ctx context.Context, kind models.Kind, id string) error {
	return s.write(func(q queryer) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM tombstones WHERE kind = ? AND id = ?", string(kind), id); err != nil {
			return fmt.Errorf("failed to clear tombstone: %w", err)
		}
		return nil
	})
}

package sqlite

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/storage"
)

// sortFieldPattern restricts sort fields to plain identifiers; the field is
// passed to json_extract as a parameter but the check keeps paths simple.
var sortFieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// SaveRecord implements storage.RecordStore. The write is skipped when the
// stored copy is strictly newer, so replayed or stale uploads are harmless.
func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *models.RemoteRecord) (bool, error) {
	var saved bool
	err := s.write(func(q queryer) error {
		res, err := q.ExecContext(ctx,
			`INSERT INTO records (user_id, record_type, record_name, fields, updated_at, saved_at, deleted)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, record_type, record_name) DO UPDATE SET
				fields = excluded.fields,
				updated_at = excluded.updated_at,
				saved_at = excluded.saved_at,
				deleted = excluded.deleted
			 WHERE excluded.updated_at >= records.updated_at`,
			rec.UserID, rec.Type, rec.Name, string(rec.Fields), rec.UpdatedAt, rec.SavedAt, rec.Deleted,
		)
		if err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check record save: %w", err)
		}
		saved = n > 0
		return nil
	})
	return saved, err
}

// QueryRecords implements storage.RecordStore. Live records and deletion
// markers are never mixed in one result.
func (s *SQLiteStore) QueryRecords(ctx context.Context, rq storage.RecordQuery) ([]*models.RemoteRecord, error) {
	query := `SELECT user_id, record_type, record_name, fields, updated_at, saved_at, deleted
		FROM records WHERE user_id = ? AND deleted = ?`
	args := []any{rq.UserID, rq.Deleted}
	switch {
	case rq.Type != "":
		query += " AND record_type = ?"
		args = append(args, rq.Type)
	case !rq.Deleted:
		return nil, errors.New("query without record type")
	}

	direction := "ASC"
	if rq.Descending {
		direction = "DESC"
	}
	switch {
	case rq.SortField == "":
		query += " ORDER BY record_name " + direction
	case rq.SortField == "updatedAt":
		query += " ORDER BY updated_at " + direction + ", record_name"
	case sortFieldPattern.MatchString(rq.SortField):
		query += " ORDER BY json_extract(fields, ?) " + direction + ", record_name"
		args = append(args, "$."+rq.SortField)
	default:
		return nil, fmt.Errorf("invalid sort field %q", rq.SortField)
	}
	if rq.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, rq.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*models.RemoteRecord
	for rows.Next() {
		var (
			rec    models.RemoteRecord
			fields string
		)
		if err := rows.Scan(&rec.UserID, &rec.Type, &rec.Name, &fields, &rec.UpdatedAt, &rec.SavedAt, &rec.Deleted); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Fields = []byte(strings.TrimSpace(fields))
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

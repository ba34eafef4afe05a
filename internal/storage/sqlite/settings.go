package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/ledgerly/internal/models"
)

// GetSettings returns the settings row, or nil when none exists yet.
func (s *SQLiteStore) GetSettings(ctx context.Context) (*models.UserSettings, error) {
	var (
		us                 models.UserSettings
		createdAt, updated int64
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, monthly_income, monthly_budget, notifications_enabled, dark_mode_enabled,
			created_at, updated_at
		 FROM user_settings WHERE singleton = 1`,
	).Scan(&us.ID, &us.MonthlyIncome, &us.MonthlyBudget, &us.NotificationsEnabled,
		&us.DarkModeEnabled, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	us.CreatedAt = fromMillis(createdAt)
	us.UpdatedAt = fromMillis(updated)
	return &us, nil
}

// UpsertSettings stores settings, replacing the existing row if any.
// The stored created_at is kept when a row already exists.
func (s *SQLiteStore) UpsertSettings(ctx context.Context, us *models.UserSettings) error {
	return s.write(func(q queryer) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO user_settings (singleton, id, monthly_income, monthly_budget,
				notifications_enabled, dark_mode_enabled, created_at, updated_at)
			 VALUES (1, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (singleton) DO UPDATE SET
				id = excluded.id,
				monthly_income = excluded.monthly_income,
				monthly_budget = excluded.monthly_budget,
				notifications_enabled = excluded.notifications_enabled,
				dark_mode_enabled = excluded.dark_mode_enabled,
				updated_at = excluded.updated_at`,
			us.ID, us.MonthlyIncome, us.MonthlyBudget, us.NotificationsEnabled,
			us.DarkModeEnabled, toMillis(us.CreatedAt), toMillis(us.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert settings: %w", err)
		}
		return nil
	})
}

// DeleteSettings removes the settings row if its ID matches and leaves a
// tombstone for it.
func (s *SQLiteStore) DeleteSettings(ctx context.Context, id string) error {
	return s.deleteWithTombstone(ctx, "user_settings", models.KindUserSettings, id)
}

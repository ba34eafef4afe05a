package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/ledgerly/internal/models"
)

const goalColumns = `id, title, category, goal_type, target_amount, current_amount,
	target_date, notes, created_at, updated_at`

// CreateSavingsGoal persists a new savings goal.
func (s *SQLiteStore) CreateSavingsGoal(ctx context.Context, goal *models.SavingsGoal) error {
	if goal.ID == "" {
		return fmt.Errorf("failed to insert savings goal %q: missing id", goal.Title)
	}
	return s.write(func(q queryer) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO savings_goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			goal.ID, goal.Title, goal.Category, string(goal.GoalType), goal.TargetAmount,
			goal.CurrentAmount, toMillis(goal.TargetDate), goal.Notes,
			toMillis(goal.CreatedAt), toMillis(goal.UpdatedAt),
		)
		if err != nil {
			return insertError("savings goal", goal.ID, err)
		}
		return nil
	})
}

// UpdateSavingsGoal overwrites an existing goal. created_at is never changed.
func (s *SQLiteStore) UpdateSavingsGoal(ctx context.Context, goal *models.SavingsGoal) error {
	return s.write(func(q queryer) error {
		res, err := q.ExecContext(ctx,
			`UPDATE savings_goals SET title = ?, category = ?, goal_type = ?, target_amount = ?,
				current_amount = ?, target_date = ?, notes = ?, updated_at = ?
			 WHERE id = ?`,
			goal.Title, goal.Category, string(goal.GoalType), goal.TargetAmount,
			goal.CurrentAmount, toMillis(goal.TargetDate), goal.Notes, toMillis(goal.UpdatedAt),
			goal.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update savings goal: %w", err)
		}
		return expectOneRow(res, "savings goal", goal.ID)
	})
}

// DeleteSavingsGoal removes a goal by ID and leaves a tombstone for it.
func (s *SQLiteStore) DeleteSavingsGoal(ctx context.Context, id string) error {
	return s.deleteWithTombstone(ctx, "savings_goals", models.KindSavingsGoal, id)
}

// GetSavingsGoal retrieves a goal by ID.
func (s *SQLiteStore) GetSavingsGoal(ctx context.Context, id string) (*models.SavingsGoal, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+goalColumns+" FROM savings_goals WHERE id = ?", id)
	goal, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("savings goal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get savings goal: %w", err)
	}
	return goal, nil
}

// ListSavingsGoals returns all goals ordered by target date.
func (s *SQLiteStore) ListSavingsGoals(ctx context.Context) ([]*models.SavingsGoal, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+goalColumns+" FROM savings_goals ORDER BY target_date, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list savings goals: %w", err)
	}
	defer rows.Close()

	var goals []*models.SavingsGoal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan savings goal: %w", err)
		}
		goals = append(goals, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate savings goals: %w", err)
	}
	return goals, nil
}

func scanGoal(row rowScanner) (*models.SavingsGoal, error) {
	var (
		goal                           models.SavingsGoal
		goalType                       string
		targetDate, createdAt, updated int64
	)
	err := row.Scan(&goal.ID, &goal.Title, &goal.Category, &goalType, &goal.TargetAmount,
		&goal.CurrentAmount, &targetDate, &goal.Notes, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	goal.GoalType = models.ParseGoalType(goalType)
	goal.TargetDate = fromMillis(targetDate)
	goal.CreatedAt = fromMillis(createdAt)
	goal.UpdatedAt = fromMillis(updated)
	return &goal, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/storage"
)

const billColumns = `id, title, amount, due_date, is_paid, notes, category,
	is_recurring, recurrence_period, recurrence_end_date, created_at, updated_at`

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = storage.ErrNotFound

// CreateBill persists a new bill.
func (s *SQLiteStore) CreateBill(ctx context.Context, bill *models.Bill) error {
	if bill.ID == "" {
		return fmt.Errorf("failed to insert bill %q: missing id", bill.Title)
	}
	return s.write(func(q queryer) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO bills (`+billColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			bill.ID, bill.Title, bill.Amount, toMillis(bill.DueDate), bill.IsPaid, bill.Notes,
			bill.Category, bill.IsRecurring, string(bill.RecurrencePeriod),
			nullMillis(bill.RecurrenceEndDate), toMillis(bill.CreatedAt), toMillis(bill.UpdatedAt),
		)
		if err != nil {
			return insertError("bill", bill.ID, err)
		}
		return nil
	})
}

// UpdateBill overwrites an existing bill. created_at is never changed.
func (s *SQLiteStore) UpdateBill(ctx context.Context, bill *models.Bill) error {
	return s.write(func(q queryer) error {
		res, err := q.ExecContext(ctx,
			`UPDATE bills SET title = ?, amount = ?, due_date = ?, is_paid = ?, notes = ?,
				category = ?, is_recurring = ?, recurrence_period = ?, recurrence_end_date = ?,
				updated_at = ?
			 WHERE id = ?`,
			bill.Title, bill.Amount, toMillis(bill.DueDate), bill.IsPaid, bill.Notes,
			bill.Category, bill.IsRecurring, string(bill.RecurrencePeriod),
			nullMillis(bill.RecurrenceEndDate), toMillis(bill.UpdatedAt), bill.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update bill: %w", err)
		}
		return expectOneRow(res, "bill", bill.ID)
	})
}

// DeleteBill removes a bill by ID and leaves a tombstone for it.
func (s *SQLiteStore) DeleteBill(ctx context.Context, id string) error {
	return s.deleteWithTombstone(ctx, "bills", models.KindBill, id)
}

// GetBill retrieves a bill by ID.
func (s *SQLiteStore) GetBill(ctx context.Context, id string) (*models.Bill, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+billColumns+" FROM bills WHERE id = ?", id)
	bill, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bill %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return bill, nil
}

// ListBills returns all bills ordered by due date.
func (s *SQLiteStore) ListBills(ctx context.Context) ([]*models.Bill, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+billColumns+" FROM bills ORDER BY due_date, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	var bills []*models.Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bills: %w", err)
	}
	return bills, nil
}

func scanBill(row rowScanner) (*models.Bill, error) {
	var (
		bill                        models.Bill
		dueDate, createdAt, updated int64
		period                      string
		recurrenceEnd               sql.NullInt64
	)
	err := row.Scan(&bill.ID, &bill.Title, &bill.Amount, &dueDate, &bill.IsPaid, &bill.Notes,
		&bill.Category, &bill.IsRecurring, &period, &recurrenceEnd, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	bill.DueDate = fromMillis(dueDate)
	bill.RecurrencePeriod = models.ParseRecurrencePeriod(period)
	bill.RecurrenceEndDate = timeFromNull(recurrenceEnd)
	bill.CreatedAt = fromMillis(createdAt)
	bill.UpdatedAt = fromMillis(updated)
	return &bill, nil
}

// expectOneRow turns an UPDATE that matched nothing into ErrNotFound.
func expectOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check %s update: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

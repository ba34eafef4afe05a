package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCategory is the category assigned when none is given.
const DefaultCategory = "General"

// RecurrencePeriod is how often a recurring bill repeats.
// The zero value means the bill has no recurrence period.
type RecurrencePeriod string

const (
	RecurrenceNone    RecurrencePeriod = ""
	RecurrenceDaily   RecurrencePeriod = "daily"
	RecurrenceWeekly  RecurrencePeriod = "weekly"
	RecurrenceMonthly RecurrencePeriod = "monthly"
	RecurrenceYearly  RecurrencePeriod = "yearly"
)

// ParseRecurrencePeriod maps a stored value to a RecurrencePeriod.
// Unknown values map to RecurrenceNone.
func ParseRecurrencePeriod(s string) RecurrencePeriod {
	switch p := RecurrencePeriod(s); p {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return p
	default:
		return RecurrenceNone
	}
}

// Next returns the occurrence after t for this period, or t for RecurrenceNone.
func (p RecurrencePeriod) Next(t time.Time) time.Time {
	switch p {
	case RecurrenceDaily:
		return t.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		return t.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return t.AddDate(0, 1, 0)
	case RecurrenceYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t
	}
}

var (
	ErrEmptyTitle           = errors.New("title is required")
	ErrNonPositive          = errors.New("amount must be greater than zero")
	ErrNegativeAmount       = errors.New("amount must not be negative")
	ErrUpdatedBeforeCreated = errors.New("updated_at is before created_at")
)

// Bill is a payable tracked by the user.
type Bill struct {
	// ID is the stable identifier (UUID format), shared with the remote copy.
	ID string

	Title  string
	Amount decimal.Decimal

	// DueDate is when the bill is due. Its calendar day is part of the ConflictKey.
	DueDate time.Time
	IsPaid  bool

	// Notes may be empty.
	Notes    string
	Category string

	IsRecurring bool
	// RecurrencePeriod is RecurrenceNone when not set.
	RecurrencePeriod RecurrencePeriod
	// RecurrenceEndDate is nil when the recurrence is open-ended.
	RecurrenceEndDate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBill creates a bill with defaults applied and both timestamps set to now.
func NewBill(title string, amount decimal.Decimal, dueDate, now time.Time) *Bill {
	return &Bill{
		ID:        uuid.New().String(),
		Title:     title,
		Amount:    amount,
		DueDate:   dueDate,
		Category:  DefaultCategory,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the invariants the form path must uphold.
func (b *Bill) Validate() error {
	if NormalizeTitle(b.Title) == "" {
		return ErrEmptyTitle
	}
	if !b.Amount.IsPositive() {
		return fmt.Errorf("bill %q: %w", b.Title, ErrNonPositive)
	}
	if b.UpdatedAt.Before(b.CreatedAt) {
		return fmt.Errorf("bill %q: %w", b.Title, ErrUpdatedBeforeCreated)
	}
	return nil
}

// Touch advances UpdatedAt to now. It never moves UpdatedAt backwards.
func (b *Bill) Touch(now time.Time) {
	b.UpdatedAt = laterOf(now, b.UpdatedAt)
}

func (b *Bill) SyncID() string           { return b.ID }
func (b *Bill) LastUpdated() time.Time   { return b.UpdatedAt }
func (b *Bill) ConflictKey() ConflictKey { return NewConflictKey(b.Title, b.DueDate) }

// OverwriteFrom copies every field except ID and CreatedAt from other.
func (b *Bill) OverwriteFrom(other *Bill) {
	b.Title = other.Title
	b.Amount = other.Amount
	b.DueDate = other.DueDate
	b.IsPaid = other.IsPaid
	b.Notes = other.Notes
	b.Category = other.Category
	b.IsRecurring = other.IsRecurring
	b.RecurrencePeriod = other.RecurrencePeriod
	b.RecurrenceEndDate = nil
	if other.RecurrenceEndDate != nil {
		end := *other.RecurrenceEndDate
		b.RecurrenceEndDate = &end
	}
	b.UpdatedAt = laterOf(other.UpdatedAt, b.CreatedAt)
}

// NearDuplicate compares titles and due dates.
func (b *Bill) NearDuplicate(other *Bill, window time.Duration) bool {
	return NormalizeTitle(b.Title) == NormalizeTitle(other.Title) &&
		withinWindow(b.DueDate, other.DueDate, window)
}

// NextDueDate returns the next due date after the current one for a
// recurring bill. ok is false when the bill does not recur or the next
// occurrence falls after RecurrenceEndDate.
func (b *Bill) NextDueDate() (next time.Time, ok bool) {
	if !b.IsRecurring || b.RecurrencePeriod == RecurrenceNone {
		return time.Time{}, false
	}
	next = b.RecurrencePeriod.Next(b.DueDate)
	if b.RecurrenceEndDate != nil && next.After(*b.RecurrenceEndDate) {
		return time.Time{}, false
	}
	return next, true
}

// Package calculator derives monthly figures from bills, goals and settings.
package calculator

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/ledgerly/internal/models"
)

// Month is a calendar month in a location.
type Month struct {
	Year  int
	Month time.Month
	Loc   *time.Location
}

// MonthOf returns the month containing t, in t's location.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month(), Loc: t.Location()}
}

// Bounds returns [start, end) of the month.
func (m Month) Bounds() (time.Time, time.Time) {
	loc := m.Loc
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// UpcomingBill is the next due date of a bill.
type UpcomingBill struct {
	BillID  string
	Title   string
	Amount  decimal.Decimal
	DueDate time.Time
}

// Summary is the monthly overview.
type Summary struct {
	Month Month

	BillsDue    int
	BillsPaid   int
	BillsUnpaid int
	TotalDue    decimal.Decimal
	TotalPaid   decimal.Decimal
	TotalUnpaid decimal.Decimal

	// RemainingBudget is MonthlyBudget minus TotalDue. Negative means over budget.
	RemainingBudget decimal.Decimal
	// Disposable is MonthlyIncome minus TotalDue.
	Disposable decimal.Decimal

	SavingsTarget  decimal.Decimal
	SavingsCurrent decimal.Decimal
	// SavingsProgress is SavingsCurrent/SavingsTarget capped at 1.
	SavingsProgress float64
	GoalsCompleted  int
	GoalsOverdue    int

	// Upcoming lists the next payment of every bill still owed, soonest first.
	Upcoming []UpcomingBill
}

// MonthlySummary computes the overview for month. settings may be nil.
func MonthlySummary(month Month, bills []*models.Bill, goals []*models.SavingsGoal, settings *models.UserSettings, now time.Time) *Summary {
	start, end := month.Bounds()
	s := &Summary{
		Month:          month,
		TotalDue:       decimal.Zero,
		TotalPaid:      decimal.Zero,
		TotalUnpaid:    decimal.Zero,
		SavingsTarget:  decimal.Zero,
		SavingsCurrent: decimal.Zero,
	}

	for _, b := range bills {
		if due := occurrenceIn(b, start, end); !due.IsZero() {
			s.BillsDue++
			s.TotalDue = s.TotalDue.Add(b.Amount)
			if b.IsPaid && !due.After(b.DueDate) {
				s.BillsPaid++
				s.TotalPaid = s.TotalPaid.Add(b.Amount)
			} else {
				s.BillsUnpaid++
				s.TotalUnpaid = s.TotalUnpaid.Add(b.Amount)
			}
		}
		if next, ok := NextDue(b, now); ok {
			s.Upcoming = append(s.Upcoming, UpcomingBill{
				BillID:  b.ID,
				Title:   b.Title,
				Amount:  b.Amount,
				DueDate: next,
			})
		}
	}
	sort.Slice(s.Upcoming, func(i, j int) bool {
		if !s.Upcoming[i].DueDate.Equal(s.Upcoming[j].DueDate) {
			return s.Upcoming[i].DueDate.Before(s.Upcoming[j].DueDate)
		}
		return s.Upcoming[i].BillID < s.Upcoming[j].BillID
	})

	for _, g := range goals {
		s.SavingsTarget = s.SavingsTarget.Add(g.TargetAmount)
		s.SavingsCurrent = s.SavingsCurrent.Add(decimal.Min(g.CurrentAmount, g.TargetAmount))
		if g.IsCompleted() {
			s.GoalsCompleted++
		} else if g.IsOverdue(now) {
			s.GoalsOverdue++
		}
	}
	if s.SavingsTarget.IsPositive() {
		s.SavingsProgress, _ = s.SavingsCurrent.Div(s.SavingsTarget).Float64()
		if s.SavingsProgress > 1 {
			s.SavingsProgress = 1
		}
	}

	budget, income := decimal.Zero, decimal.Zero
	if settings != nil {
		budget, income = settings.MonthlyBudget, settings.MonthlyIncome
	}
	s.RemainingBudget = budget.Sub(s.TotalDue)
	s.Disposable = income.Sub(s.TotalDue)
	return s
}

// occurrenceIn returns the first due date of b within [start, end), or the
// zero time. Recurring bills are projected forward from their DueDate.
func occurrenceIn(b *models.Bill, start, end time.Time) time.Time {
	due := b.DueDate
	for due.Before(start) {
		if !b.IsRecurring || b.RecurrencePeriod == models.RecurrenceNone {
			return time.Time{}
		}
		due = b.RecurrencePeriod.Next(due)
		if b.RecurrenceEndDate != nil && due.After(*b.RecurrenceEndDate) {
			return time.Time{}
		}
	}
	if !due.Before(end) {
		return time.Time{}
	}
	return due
}

// NextDue returns the next date b must be paid on at or after now. An unpaid
// bill is due on its DueDate even when that has passed. A paid bill is due on
// its next recurrence, if any.
func NextDue(b *models.Bill, now time.Time) (time.Time, bool) {
	if !b.IsPaid {
		return b.DueDate, true
	}
	next, ok := b.NextDueDate()
	if !ok {
		return time.Time{}, false
	}
	for next.Before(now) {
		next = b.RecurrencePeriod.Next(next)
		if b.RecurrenceEndDate != nil && next.After(*b.RecurrenceEndDate) {
			return time.Time{}, false
		}
	}
	return next, true
}

package dedup

import (
	"time"

	"github.com/mmynk/ledgerly/internal/models"
)

const (
	BaseScore = 10
	MaxScore  = 100
)

// Scorer rates how complete a record is. Only the ordering it induces
// matters; the values are not persisted.
type Scorer[T any] interface {
	Score(record T, now time.Time) int
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc[T any] func(record T, now time.Time) int

func (f ScorerFunc[T]) Score(record T, now time.Time) int { return f(record, now) }

const day = 24 * time.Hour

// RecencyBonus rewards records updated recently.
func RecencyBonus(updated, now time.Time) int {
	age := now.Sub(updated)
	switch {
	case age <= 7*day:
		return 5
	case age <= 30*day:
		return 3
	case age <= 90*day:
		return 1
	default:
		return 0
	}
}

func capScore(s int) int {
	return min(s, MaxScore)
}

// BillScore is the default Scorer for bills.
func BillScore(b *models.Bill, now time.Time) int {
	s := BaseScore
	if b.Notes != "" {
		s += 5
	}
	if b.Category != "" && b.Category != models.DefaultCategory {
		s += 3
	}
	if b.IsRecurring {
		s += 2
	}
	if b.RecurrencePeriod != models.RecurrenceNone {
		s += 2
	}
	if b.RecurrenceEndDate != nil {
		s += 2
	}
	return capScore(s + RecencyBonus(b.UpdatedAt, now))
}

// SavingsGoalScore is the default Scorer for savings goals.
func SavingsGoalScore(g *models.SavingsGoal, now time.Time) int {
	s := BaseScore
	if g.Notes != "" {
		s += 5
	}
	if g.Category != "" && g.Category != models.DefaultCategory {
		s += 3
	}
	if g.GoalType != models.DefaultGoalType {
		s += 3
	}
	if g.CurrentAmount.IsPositive() {
		s += 2
	}
	return capScore(s + RecencyBonus(g.UpdatedAt, now))
}

// SettingsScore is the default Scorer for user settings.
func SettingsScore(us *models.UserSettings, now time.Time) int {
	s := BaseScore
	if !us.MonthlyIncome.IsZero() {
		s += 2
	}
	if !us.MonthlyBudget.IsZero() {
		s += 2
	}
	return capScore(s + RecencyBonus(us.UpdatedAt, now))
}

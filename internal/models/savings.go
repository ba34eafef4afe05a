package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GoalType classifies a savings goal.
type GoalType string

const (
	GoalSavings          GoalType = "savings"
	GoalCreditCardPayoff GoalType = "credit_card_payoff"
	GoalDebtPayoff       GoalType = "debt_payoff"
	GoalInvestment       GoalType = "investment"
)

// DefaultGoalType is assigned when none is given.
const DefaultGoalType = GoalSavings

// ParseGoalType maps a stored value to a GoalType. Unknown values map to
// DefaultGoalType.
func ParseGoalType(s string) GoalType {
	switch t := GoalType(s); t {
	case GoalSavings, GoalCreditCardPayoff, GoalDebtPayoff, GoalInvestment:
		return t
	default:
		return DefaultGoalType
	}
}

// SavingsGoal tracks progress towards a target amount.
type SavingsGoal struct {
	// ID is the stable identifier (UUID format), shared with the remote copy.
	ID string

	Title    string
	Category string
	GoalType GoalType

	TargetAmount  decimal.Decimal
	CurrentAmount decimal.Decimal

	// TargetDate's calendar day is part of the ConflictKey.
	TargetDate time.Time
	Notes      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSavingsGoal creates a goal with defaults applied and both timestamps set to now.
func NewSavingsGoal(title string, target decimal.Decimal, targetDate, now time.Time) *SavingsGoal {
	return &SavingsGoal{
		ID:            uuid.New().String(),
		Title:         title,
		Category:      DefaultCategory,
		GoalType:      DefaultGoalType,
		TargetAmount:  target,
		CurrentAmount: decimal.Zero,
		TargetDate:    targetDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Validate checks the invariants the form path must uphold.
func (g *SavingsGoal) Validate() error {
	if NormalizeTitle(g.Title) == "" {
		return ErrEmptyTitle
	}
	if !g.TargetAmount.IsPositive() {
		return fmt.Errorf("goal %q target: %w", g.Title, ErrNonPositive)
	}
	if g.CurrentAmount.IsNegative() {
		return fmt.Errorf("goal %q current: %w", g.Title, ErrNegativeAmount)
	}
	if g.UpdatedAt.Before(g.CreatedAt) {
		return fmt.Errorf("goal %q: %w", g.Title, ErrUpdatedBeforeCreated)
	}
	return nil
}

// Progress returns current/target capped at 1.0. A non-positive target
// yields 0.
func (g *SavingsGoal) Progress() float64 {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	p, _ := g.CurrentAmount.Div(g.TargetAmount).Float64()
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}

// IsCompleted reports whether the current amount reached the target.
func (g *SavingsGoal) IsCompleted() bool {
	return g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount)
}

// IsOverdue reports whether the target date passed without completion.
func (g *SavingsGoal) IsOverdue(now time.Time) bool {
	return now.After(g.TargetDate) && !g.IsCompleted()
}

// Remaining returns how much is left to reach the target, never negative.
func (g *SavingsGoal) Remaining() decimal.Decimal {
	r := g.TargetAmount.Sub(g.CurrentAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Touch advances UpdatedAt to now. It never moves UpdatedAt backwards.
func (g *SavingsGoal) Touch(now time.Time) {
	g.UpdatedAt = laterOf(now, g.UpdatedAt)
}

func (g *SavingsGoal) SyncID() string           { return g.ID }
func (g *SavingsGoal) LastUpdated() time.Time   { return g.UpdatedAt }
func (g *SavingsGoal) ConflictKey() ConflictKey { return NewConflictKey(g.Title, g.TargetDate) }

// OverwriteFrom copies every field except ID and CreatedAt from other.
func (g *SavingsGoal) OverwriteFrom(other *SavingsGoal) {
	g.Title = other.Title
	g.Category = other.Category
	g.GoalType = other.GoalType
	g.TargetAmount = other.TargetAmount
	g.CurrentAmount = other.CurrentAmount
	g.TargetDate = other.TargetDate
	g.Notes = other.Notes
	g.UpdatedAt = laterOf(other.UpdatedAt, g.CreatedAt)
}

// NearDuplicate compares titles and target dates.
func (g *SavingsGoal) NearDuplicate(other *SavingsGoal, window time.Duration) bool {
	return NormalizeTitle(g.Title) == NormalizeTitle(other.Title) &&
		withinWindow(g.TargetDate, other.TargetDate, window)
}

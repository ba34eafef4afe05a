// Package ledger is the edit path for bills, savings goals and settings.
// Every mutation stamps UpdatedAt and reports the changed kind so the sync
// orchestrator can schedule an automatic sync.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/storage"
)

var (
	// ErrNotFound is returned when no record has the given ID.
	ErrNotFound = storage.ErrNotFound
	// ErrInvalidContribution is returned for a zero contribution or one that
	// would take a goal below zero.
	ErrInvalidContribution = errors.New("invalid contribution")
)

// Notifier receives the kind of every committed mutation.
type Notifier interface {
	NotifyMutation(kind models.Kind)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind models.Kind)

func (f NotifierFunc) NotifyMutation(kind models.Kind) { f(kind) }

// Service edits the local store.
type Service struct {
	store    storage.LocalStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a ledger service. notifier may be nil.
func NewService(store storage.LocalStore, notifier Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = NotifierFunc(func(models.Kind) {})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// BillInput holds the user-editable fields of a bill.
type BillInput struct {
	Title    string
	Amount   decimal.Decimal
	DueDate  time.Time
	Notes    string
	Category string
	// RecurrencePeriod makes the bill recurring when set.
	RecurrencePeriod  models.RecurrencePeriod
	RecurrenceEndDate *time.Time
}

func (in BillInput) apply(b *models.Bill) {
	b.Title = in.Title
	b.Amount = in.Amount
	b.DueDate = in.DueDate
	b.Notes = in.Notes
	b.Category = in.Category
	if b.Category == "" {
		b.Category = models.DefaultCategory
	}
	b.IsRecurring = in.RecurrencePeriod != models.RecurrenceNone
	b.RecurrencePeriod = in.RecurrencePeriod
	b.RecurrenceEndDate = nil
	if b.IsRecurring && in.RecurrenceEndDate != nil {
		end := *in.RecurrenceEndDate
		b.RecurrenceEndDate = &end
	}
}

// GoalInput holds the user-editable fields of a savings goal.
type GoalInput struct {
	Title        string
	Category     string
	GoalType     models.GoalType
	TargetAmount decimal.Decimal
	TargetDate   time.Time
	Notes        string
}

func (in GoalInput) apply(g *models.SavingsGoal) {
	g.Title = in.Title
	g.Category = in.Category
	if g.Category == "" {
		g.Category = models.DefaultCategory
	}
	g.GoalType = models.ParseGoalType(string(in.GoalType))
	g.TargetAmount = in.TargetAmount
	g.TargetDate = in.TargetDate
	g.Notes = in.Notes
}

// SettingsInput holds the user-editable settings.
type SettingsInput struct {
	MonthlyIncome        decimal.Decimal
	MonthlyBudget        decimal.Decimal
	NotificationsEnabled bool
	DarkModeEnabled      bool
}

// find looks a record up by ID.
func find[T models.Syncable[T]](ctx context.Context, c storage.Collection[T], id string) (T, error) {
	var zero T
	records, err := c.List(ctx)
	if err != nil {
		return zero, err
	}
	for _, r := range records {
		if r.SyncID() == id {
			return r, nil
		}
	}
	return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *Service) committed(kind models.Kind, op, id string) {
	s.logger.Debug("Record changed", "kind", string(kind), "op", op, "id", id)
	s.notifier.NotifyMutation(kind)
}

// Bills returns every bill ordered by due date.
func (s *Service) Bills(ctx context.Context) ([]*models.Bill, error) {
	bills, err := s.store.Bills().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	sort.Slice(bills, func(i, j int) bool {
		if !bills[i].DueDate.Equal(bills[j].DueDate) {
			return bills[i].DueDate.Before(bills[j].DueDate)
		}
		return bills[i].ID < bills[j].ID
	})
	return bills, nil
}

// AddBill creates a bill.
func (s *Service) AddBill(ctx context.Context, in BillInput) (*models.Bill, error) {
	b := models.NewBill(in.Title, in.Amount, in.DueDate, s.now())
	in.apply(b)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Bills().Insert(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save bill: %w", err)
	}
	s.committed(models.KindBill, "add", b.ID)
	return b, nil
}

// EditBill replaces the editable fields of a bill. The paid flag is kept.
func (s *Service) EditBill(ctx context.Context, id string, in BillInput) (*models.Bill, error) {
	return s.updateBill(ctx, id, "edit", func(b *models.Bill) { in.apply(b) })
}

// SetBillPaid marks a bill paid or unpaid.
func (s *Service) SetBillPaid(ctx context.Context, id string, paid bool) (*models.Bill, error) {
	return s.updateBill(ctx, id, "pay", func(b *models.Bill) { b.IsPaid = paid })
}

// RollOverBill advances a paid recurring bill to its next due date and marks
// it unpaid.
func (s *Service) RollOverBill(ctx context.Context, id string) (*models.Bill, error) {
	return s.updateBill(ctx, id, "rollover", func(b *models.Bill) {
		if next, ok := b.NextDueDate(); ok && b.IsPaid {
			b.DueDate = next
			b.IsPaid = false
		}
	})
}

func (s *Service) updateBill(ctx context.Context, id, op string, mutate func(*models.Bill)) (*models.Bill, error) {
	var out *models.Bill
	err := s.store.RunInTx(ctx, func(tx storage.LocalStore) error {
		b, err := find(ctx, tx.Bills(), id)
		if err != nil {
			return err
		}
		mutate(b)
		b.Touch(s.now())
		if err := b.Validate(); err != nil {
			return err
		}
		out = b
		return tx.Bills().Update(ctx, b)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to %s bill: %w", op, err)
	}
	s.committed(models.KindBill, op, id)
	return out, nil
}

// DeleteBill removes a bill. The deletion reaches other devices with the
// next sync.
func (s *Service) DeleteBill(ctx context.Context, id string) error {
	err := s.store.RunInTx(ctx, func(tx storage.LocalStore) error {
		b, err := find(ctx, tx.Bills(), id)
		if err != nil {
			return err
		}
		return tx.Bills().Delete(ctx, b)
	})
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	s.committed(models.KindBill, "delete", id)
	return nil
}

// Goals returns every savings goal ordered by target date.
func (s *Service) Goals(ctx context.Context) ([]*models.SavingsGoal, error) {
	goals, err := s.store.SavingsGoals().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	sort.Slice(goals, func(i, j int) bool {
		if !goals[i].TargetDate.Equal(goals[j].TargetDate) {
			return goals[i].TargetDate.Before(goals[j].TargetDate)
		}
		return goals[i].ID < goals[j].ID
	})
	return goals, nil
}

// AddGoal creates a savings goal.
func (s *Service) AddGoal(ctx context.Context, in GoalInput) (*models.SavingsGoal, error) {
	g := models.NewSavingsGoal(in.Title, in.TargetAmount, in.TargetDate, s.now())
	in.apply(g)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.SavingsGoals().Insert(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to save goal: %w", err)
	}
	s.committed(models.KindSavingsGoal, "add", g.ID)
	return g, nil
}

// EditGoal replaces the editable fields of a goal. The current amount is kept.
func (s *Service) EditGoal(ctx context.Context, id string, in GoalInput) (*models.SavingsGoal, error) {
	return s.updateGoal(ctx, id, "edit", func(g *models.SavingsGoal) error {
		in.apply(g)
		return nil
	})
}

// Contribute adds amount to a goal's current amount. A negative amount is a
// withdrawal and may not take the goal below zero.
func (s *Service) Contribute(ctx context.Context, id string, amount decimal.Decimal) (*models.SavingsGoal, error) {
	return s.updateGoal(ctx, id, "contribute", func(g *models.SavingsGoal) error {
		next := g.CurrentAmount.Add(amount)
		if amount.IsZero() || next.IsNegative() {
			return fmt.Errorf("%w: %s", ErrInvalidContribution, amount)
		}
		g.CurrentAmount = next
		return nil
	})
}

func (s *Service) updateGoal(ctx context.Context, id, op string, mutate func(*models.SavingsGoal) error) (*models.SavingsGoal, error) {
	var out *models.SavingsGoal
	err := s.store.RunInTx(ctx, func(tx storage.LocalStore) error {
		g, err := find(ctx, tx.SavingsGoals(), id)
		if err != nil {
			return err
		}
		if err := mutate(g); err != nil {
			return err
		}
		g.Touch(s.now())
		if err := g.Validate(); err != nil {
			return err
		}
		out = g
		return tx.SavingsGoals().Update(ctx, g)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to %s goal: %w", op, err)
	}
	s.committed(models.KindSavingsGoal, op, id)
	return out, nil
}

// DeleteGoal removes a goal. The deletion reaches other devices with the
// next sync.
func (s *Service) DeleteGoal(ctx context.Context, id string) error {
	err := s.store.RunInTx(ctx, func(tx storage.LocalStore) error {
		g, err := find(ctx, tx.SavingsGoals(), id)
		if err != nil {
			return err
		}
		return tx.SavingsGoals().Delete(ctx, g)
	})
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	s.committed(models.KindSavingsGoal, "delete", id)
	return nil
}

// Settings returns the stored settings, or unsaved defaults when there are none.
func (s *Service) Settings(ctx context.Context) (*models.UserSettings, error) {
	all, err := s.store.Settings().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if len(all) == 0 {
		return models.NewUserSettings(s.now()), nil
	}
	return all[0], nil
}

// UpdateSettings stores new settings, creating the record on first use.
func (s *Service) UpdateSettings(ctx context.Context, in SettingsInput) (*models.UserSettings, error) {
	if in.MonthlyIncome.IsNegative() || in.MonthlyBudget.IsNegative() {
		return nil, fmt.Errorf("settings: %w", models.ErrNegativeAmount)
	}

	var out *models.UserSettings
	err := s.store.RunInTx(ctx, func(tx storage.LocalStore) error {
		all, err := tx.Settings().List(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		st := models.NewUserSettings(now)
		if len(all) > 0 {
			st = all[0]
		}
		st.MonthlyIncome = in.MonthlyIncome
		st.MonthlyBudget = in.MonthlyBudget
		st.NotificationsEnabled = in.NotificationsEnabled
		st.DarkModeEnabled = in.DarkModeEnabled
		st.Touch(now)
		out = st
		if len(all) == 0 {
			return tx.Settings().Insert(ctx, st)
		}
		return tx.Settings().Update(ctx, st)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	s.committed(models.KindUserSettings, "update", out.ID)
	return out, nil
}

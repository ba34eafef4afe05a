package dedup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/storage"
	"github.com/mmynk/ledgerly/internal/storage/memory"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func parseDay(s string) time.Time {
	t, err := time.Parse(models.DayLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func bill(id, title, due string, updated time.Time) *models.Bill {
	b := models.NewBill(title, decimal.NewFromInt(100), parseDay(due), updated.Add(-time.Hour))
	b.ID = id
	b.UpdatedAt = updated
	return b
}

func goal(id, title, target string, updated time.Time) *models.SavingsGoal {
	g := models.NewSavingsGoal(title, decimal.NewFromInt(1000), parseDay(target), updated.Add(-time.Hour))
	g.ID = id
	g.UpdatedAt = updated
	return g
}

func TestRankRecencyDominates(t *testing.T) {
	r := NewResolver(ScorerFunc[*models.Bill](BillScore), clock, nil)

	rich := bill("a", "Rent", "2024-01-01", now.Add(-2*time.Hour))
	rich.Notes = "landlord"
	rich.Category = "Housing"
	plain := bill("b", "rent ", "2024-01-01", now.Add(-time.Hour))

	ranked := r.Rank([]*models.Bill{rich, plain})
	assert.Equal(t, "b", ranked[0].ID, "strictly later update wins regardless of score")
}

func TestRankScoreBreaksTies(t *testing.T) {
	r := NewResolver(ScorerFunc[*models.Bill](BillScore), clock, nil)
	ts := now.Add(-time.Hour)

	plain := bill("a", "Rent", "2024-01-01", ts)
	rich := bill("b", "Rent", "2024-01-01", ts)
	rich.Notes = "autopay"

	assert.Equal(t, "b", r.Rank([]*models.Bill{plain, rich})[0].ID)
	assert.Equal(t, "b", r.Rank([]*models.Bill{rich, plain})[0].ID)

	// Full tie falls back to ID.
	twin := bill("0", "Rent", "2024-01-01", ts)
	assert.Equal(t, "0", r.Rank([]*models.Bill{plain, twin})[0].ID)
}

func TestPlanGroupsByConflictKey(t *testing.T) {
	r := NewResolver(ScorerFunc[*models.Bill](BillScore), clock, nil)
	records := []*models.Bill{
		bill("1", "Rent", "2024-01-01", now.Add(-3*time.Hour)),
		bill("2", "Power", "2024-01-01", now),
		bill("3", " RENT", "2024-01-01", now.Add(-time.Hour)),
		bill("4", "Rent", "2024-02-01", now),
	}

	keep, remove := r.Plan(records)
	ids := func(bs []*models.Bill) []string {
		var out []string
		for _, b := range bs {
			out = append(out, b.ID)
		}
		return out
	}
	assert.Equal(t, []string{"3", "2", "4"}, ids(keep))
	assert.Equal(t, []string{"1"}, ids(remove))
}

func TestResolveCompleteness(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for i := range 5 {
		require.NoError(t, store.SavingsGoals().Insert(ctx,
			goal(fmt.Sprintf("g%d", i), "Vacation", "2024-06-01", now.Add(-time.Duration(i)*time.Hour))))
	}
	require.NoError(t, store.SavingsGoals().Insert(ctx, goal("other", "Car", "2024-06-01", now)))

	r := NewResolver(ScorerFunc[*models.SavingsGoal](SavingsGoalScore), clock, nil)
	deleted, err := r.Resolve(ctx, store.SavingsGoals())
	require.NoError(t, err)
	assert.Equal(t, 4, deleted)

	goals, err := store.SavingsGoals().List(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 2)
	var ids []string
	for _, g := range goals {
		ids = append(ids, g.ID)
	}
	assert.ElementsMatch(t, []string{"g0", "other"}, ids)

	// Idempotent.
	deleted, err = r.Resolve(ctx, store.SavingsGoals())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

type failingDeletes struct {
	storage.Collection[*models.Bill]
	failID string
}

func (f failingDeletes) Delete(ctx context.Context, b *models.Bill) error {
	if b.ID == f.failID {
		return errors.New("disk full")
	}
	return f.Collection.Delete(ctx, b)
}

func TestResolveContinuesPastFailedDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for i, id := range []string{"keep", "x", "y"} {
		require.NoError(t, store.Bills().Insert(ctx, bill(id, "Rent", "2024-01-01", now.Add(-time.Duration(i)*time.Minute))))
	}

	r := NewResolver(ScorerFunc[*models.Bill](BillScore), clock, nil)
	deleted, err := r.Resolve(ctx, failingDeletes{Collection: store.Bills(), failID: "x"})
	assert.Equal(t, 1, deleted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	bills, err := store.Bills().List(ctx)
	require.NoError(t, err)
	assert.Len(t, bills, 2)
}

func TestScores(t *testing.T) {
	t.Run("bill", func(t *testing.T) {
		end := parseDay("2025-01-01")
		b := bill("a", "Gym", "2024-01-01", now.Add(-200*24*time.Hour))
		assert.Equal(t, BaseScore, BillScore(b, now))

		b.Notes = "n"
		b.Category = "Health"
		b.IsRecurring = true
		b.RecurrencePeriod = models.RecurrenceMonthly
		b.RecurrenceEndDate = &end
		b.UpdatedAt = now
		assert.Equal(t, BaseScore+5+3+2+2+2+5, BillScore(b, now))
	})

	t.Run("savings goal", func(t *testing.T) {
		g := goal("a", "Car", "2024-06-01", now.Add(-20*24*time.Hour))
		assert.Equal(t, BaseScore+3, SavingsGoalScore(g, now))

		g.GoalType = models.GoalInvestment
		g.CurrentAmount = decimal.NewFromInt(10)
		assert.Equal(t, BaseScore+3+3+2, SavingsGoalScore(g, now))
	})

	t.Run("settings", func(t *testing.T) {
		us := models.NewUserSettings(now.Add(-60 * 24 * time.Hour))
		us.MonthlyIncome = decimal.NewFromInt(5000)
		assert.Equal(t, BaseScore+2+1, SettingsScore(us, now))
	})

	t.Run("recency bonus", func(t *testing.T) {
		assert.Equal(t, 5, RecencyBonus(now.Add(-7*24*time.Hour), now))
		assert.Equal(t, 3, RecencyBonus(now.Add(-8*24*time.Hour), now))
		assert.Equal(t, 1, RecencyBonus(now.Add(-90*24*time.Hour), now))
		assert.Equal(t, 0, RecencyBonus(now.Add(-91*24*time.Hour), now))
	})
}

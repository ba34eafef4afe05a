package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	// Create temp directory for test database
	tempDir, err := os.MkdirTemp("", "ledgerly-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var (
	created = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	due     = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
)

func TestBills(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("CreateBill and GetBill round trip every field", func(t *testing.T) {
		end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		bill := models.NewBill("Rent", decimal.RequireFromString("1200.50"), due, created)
		bill.Notes = "landlord"
		bill.Category = "Housing"
		bill.IsRecurring = true
		bill.RecurrencePeriod = models.RecurrenceMonthly
		bill.RecurrenceEndDate = &end
		bill.UpdatedAt = created.Add(time.Hour)

		if err := store.CreateBill(ctx, bill); err != nil {
			t.Fatalf("CreateBill failed: %v", err)
		}

		got, err := store.GetBill(ctx, bill.ID)
		if err != nil {
			t.Fatalf("GetBill failed: %v", err)
		}
		if got.Title != "Rent" || got.Notes != "landlord" || got.Category != "Housing" {
			t.Errorf("text fields mismatch: %+v", got)
		}
		if !got.Amount.Equal(bill.Amount) {
			t.Errorf("Amount = %s, want %s", got.Amount, bill.Amount)
		}
		if !got.DueDate.Equal(due) {
			t.Errorf("DueDate = %v, want %v", got.DueDate, due)
		}
		if got.RecurrencePeriod != models.RecurrenceMonthly || !got.IsRecurring {
			t.Errorf("recurrence mismatch: %+v", got)
		}
		if got.RecurrenceEndDate == nil || !got.RecurrenceEndDate.Equal(end) {
			t.Errorf("RecurrenceEndDate = %v, want %v", got.RecurrenceEndDate, end)
		}
		if !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(bill.UpdatedAt) {
			t.Errorf("timestamps mismatch: created=%v updated=%v", got.CreatedAt, got.UpdatedAt)
		}
	})

	t.Run("UpdateBill keeps created_at", func(t *testing.T) {
		bill := models.NewBill("Phone", decimal.NewFromInt(40), due, created)
		if err := store.CreateBill(ctx, bill); err != nil {
			t.Fatalf("CreateBill failed: %v", err)
		}

		bill.Amount = decimal.NewFromInt(45)
		bill.IsPaid = true
		bill.CreatedAt = created.Add(48 * time.Hour)
		bill.UpdatedAt = created.Add(72 * time.Hour)
		if err := store.UpdateBill(ctx, bill); err != nil {
			t.Fatalf("UpdateBill failed: %v", err)
		}

		got, err := store.GetBill(ctx, bill.ID)
		if err != nil {
			t.Fatalf("GetBill failed: %v", err)
		}
		if !got.Amount.Equal(decimal.NewFromInt(45)) || !got.IsPaid {
			t.Errorf("update not applied: %+v", got)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt changed to %v", got.CreatedAt)
		}
	})

	t.Run("UpdateBill on missing bill returns ErrNotFound", func(t *testing.T) {
		bill := models.NewBill("Ghost", decimal.NewFromInt(1), due, created)
		err := store.UpdateBill(ctx, bill)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteBill is idempotent", func(t *testing.T) {
		bill := models.NewBill("Gym", decimal.NewFromInt(30), due, created)
		if err := store.CreateBill(ctx, bill); err != nil {
			t.Fatalf("CreateBill failed: %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := store.DeleteBill(ctx, bill.ID); err != nil {
				t.Fatalf("DeleteBill #%d failed: %v", i+1, err)
			}
		}
		if _, err := store.GetBill(ctx, bill.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("CreateBill without ID fails", func(t *testing.T) {
		if err := store.CreateBill(ctx, &models.Bill{Title: "NoID"}); err == nil {
			t.Error("expected error for bill without id")
		}
	})
}

func TestListBillsOrderedByDueDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	later := models.NewBill("Later", decimal.NewFromInt(1), due.AddDate(0, 1, 0), created)
	sooner := models.NewBill("Sooner", decimal.NewFromInt(1), due, created)
	for _, b := range []*models.Bill{later, sooner} {
		if err := store.CreateBill(ctx, b); err != nil {
			t.Fatalf("CreateBill failed: %v", err)
		}
	}

	bills, err := store.Bills().List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(bills) != 2 || bills[0].Title != "Sooner" || bills[1].Title != "Later" {
		t.Errorf("unexpected order: %v", bills)
	}
}

func TestSavingsGoals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	goal := models.NewSavingsGoal("Vacation", decimal.NewFromInt(2000), due, created)
	goal.GoalType = models.GoalInvestment
	goal.CurrentAmount = decimal.RequireFromString("150.25")

	if err := store.SavingsGoals().Insert(ctx, goal); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetSavingsGoal(ctx, goal.ID)
	if err != nil {
		t.Fatalf("GetSavingsGoal failed: %v", err)
	}
	if got.GoalType != models.GoalInvestment || !got.CurrentAmount.Equal(goal.CurrentAmount) {
		t.Errorf("unexpected goal: %+v", got)
	}

	goal.CurrentAmount = decimal.NewFromInt(500)
	goal.UpdatedAt = created.Add(time.Hour)
	if err := store.SavingsGoals().Update(ctx, goal); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	goals, err := store.SavingsGoals().List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(goals) != 1 || !goals[0].CurrentAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("unexpected goals after update: %+v", goals)
	}

	if err := store.SavingsGoals().Delete(ctx, goal); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	goals, _ = store.SavingsGoals().List(ctx)
	if len(goals) != 0 {
		t.Errorf("expected no goals, got %d", len(goals))
	}
}

func TestSettingsSingleton(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no settings, got %+v", got)
	}

	first := models.NewUserSettings(created)
	first.MonthlyBudget = decimal.NewFromInt(3000)
	if err := store.Settings().Insert(ctx, first); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// A second insert replaces the row instead of adding one.
	second := models.NewUserSettings(created.Add(time.Hour))
	second.DarkModeEnabled = true
	if err := store.Settings().Insert(ctx, second); err != nil {
		t.Fatalf("second Insert failed: %v", err)
	}

	all, err := store.Settings().List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one settings row, got %d", len(all))
	}
	if all[0].ID != second.ID || !all[0].DarkModeEnabled {
		t.Errorf("expected second settings to win, got %+v", all[0])
	}
	if !all[0].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want original %v", all[0].CreatedAt, created)
	}
}

func TestRunInTx(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		bill := models.NewBill("Water", decimal.NewFromInt(20), due, created)
		err := store.RunInTx(ctx, func(tx storage.LocalStore) error {
			return tx.Bills().Insert(ctx, bill)
		})
		if err != nil {
			t.Fatalf("RunInTx failed: %v", err)
		}
		if _, err := store.GetBill(ctx, bill.ID); err != nil {
			t.Errorf("bill not committed: %v", err)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		bill := models.NewBill("Power", decimal.NewFromInt(60), due, created)
		boom := errors.New("boom")
		err := store.RunInTx(ctx, func(tx storage.LocalStore) error {
			if err := tx.Bills().Insert(ctx, bill); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if _, err := store.GetBill(ctx, bill.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected rollback, got %v", err)
		}
	})

	t.Run("nested RunInTx reuses the transaction", func(t *testing.T) {
		bill := models.NewBill("Internet", decimal.NewFromInt(50), due, created)
		err := store.RunInTx(ctx, func(tx storage.LocalStore) error {
			return tx.RunInTx(ctx, func(inner storage.LocalStore) error {
				return inner.Bills().Insert(ctx, bill)
			})
		})
		if err != nil {
			t.Fatalf("nested RunInTx failed: %v", err)
		}
		if _, err := store.GetBill(ctx, bill.ID); err != nil {
			t.Errorf("bill not committed: %v", err)
		}
	})
}

func TestRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	save := func(name string, updated int64, fields string) bool {
		t.Helper()
		saved, err := store.SaveRecord(ctx, &models.RemoteRecord{
			UserID: "u1", Type: "Bill", Name: name,
			Fields: []byte(fields), UpdatedAt: updated, SavedAt: updated,
		})
		if err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
		return saved
	}

	t.Run("stale write is skipped", func(t *testing.T) {
		if !save("a", 200, `{"title":"Rent","dueDate":2}`) {
			t.Fatal("expected first save to be applied")
		}
		if save("a", 100, `{"title":"Old","dueDate":2}`) {
			t.Error("expected stale save to be skipped")
		}
		if !save("a", 200, `{"title":"Rent again","dueDate":2}`) {
			t.Error("expected equal-timestamp save to be applied")
		}
	})

	t.Run("query sorts by field and isolates users", func(t *testing.T) {
		save("b", 300, `{"title":"Water","dueDate":1}`)
		if _, err := store.SaveRecord(ctx, &models.RemoteRecord{
			UserID: "u2", Type: "Bill", Name: "x", Fields: []byte(`{}`), UpdatedAt: 1,
		}); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}

		recs, err := store.QueryRecords(ctx, storage.RecordQuery{UserID: "u1", Type: "Bill", SortField: "dueDate"})
		if err != nil {
			t.Fatalf("QueryRecords failed: %v", err)
		}
		if len(recs) != 2 || recs[0].Name != "b" || recs[1].Name != "a" {
			t.Fatalf("unexpected records: %+v", recs)
		}
		if string(recs[1].Fields) != `{"title":"Rent again","dueDate":2}` {
			t.Errorf("unexpected fields: %s", recs[1].Fields)
		}
	})

	t.Run("query by updatedAt desc with limit", func(t *testing.T) {
		recs, err := store.QueryRecords(ctx, storage.RecordQuery{
			UserID: "u1", Type: "Bill", SortField: "updatedAt", Descending: true, Limit: 1,
		})
		if err != nil {
			t.Fatalf("QueryRecords failed: %v", err)
		}
		if len(recs) != 1 || recs[0].Name != "b" {
			t.Errorf("unexpected records: %+v", recs)
		}
	})

	t.Run("invalid sort field", func(t *testing.T) {
		_, err := store.QueryRecords(ctx, storage.RecordQuery{UserID: "u1", Type: "Bill", SortField: "x; DROP"})
		if err == nil {
			t.Error("expected error for invalid sort field")
		}
	})

	t.Run("deletion marker hides the record", func(t *testing.T) {
		saved, err := store.SaveRecord(ctx, &models.RemoteRecord{
			UserID: "u1", Type: "Bill", Name: "b", Fields: []byte(`{"updatedAt":400}`),
			UpdatedAt: 400, SavedAt: 400, Deleted: true,
		})
		if err != nil || !saved {
			t.Fatalf("SaveRecord deletion = %v, %v", saved, err)
		}
		if save("b", 350, `{"title":"Water","dueDate":1}`) {
			t.Error("expected an upload older than the deletion to be skipped")
		}

		live, err := store.QueryRecords(ctx, storage.RecordQuery{UserID: "u1", Type: "Bill"})
		if err != nil {
			t.Fatalf("QueryRecords failed: %v", err)
		}
		if len(live) != 1 || live[0].Name != "a" {
			t.Errorf("unexpected live records: %+v", live)
		}

		gone, err := store.QueryRecords(ctx, storage.RecordQuery{UserID: "u1", Deleted: true})
		if err != nil {
			t.Fatalf("QueryRecords deleted failed: %v", err)
		}
		if len(gone) != 1 || gone[0].Name != "b" || !gone[0].Deleted || gone[0].UpdatedAt != 400 {
			t.Errorf("unexpected deletions: %+v", gone)
		}

		if !save("b", 500, `{"title":"Water","dueDate":1}`) {
			t.Error("expected an edit newer than the deletion to restore the record")
		}
		live, err = store.QueryRecords(ctx, storage.RecordQuery{UserID: "u1", Type: "Bill"})
		if err != nil {
			t.Fatalf("QueryRecords failed: %v", err)
		}
		if len(live) != 2 {
			t.Errorf("expected restored record, got %+v", live)
		}
	})

	t.Run("live query requires a type", func(t *testing.T) {
		if _, err := store.QueryRecords(ctx, storage.RecordQuery{UserID: "u1"}); err == nil {
			t.Error("expected error for query without type")
		}
	})
}

func TestDeleteLeavesTombstone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	bill := models.NewBill("Gym", decimal.NewFromInt(30), updated, updated)
	if err := store.Bills().Insert(ctx, bill); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	before := time.Now().Add(-time.Second)
	if err := store.Bills().Delete(ctx, bill); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Bills().Delete(ctx, bill); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}

	tombs, err := store.Bills().Tombstones(ctx)
	if err != nil {
		t.Fatalf("Tombstones failed: %v", err)
	}
	if len(tombs) != 1 || tombs[0].ID != bill.ID || tombs[0].Kind != models.KindBill {
		t.Fatalf("unexpected tombstones: %+v", tombs)
	}
	if tombs[0].DeletedAt.Before(before) {
		t.Errorf("DeletedAt = %v, want the time of deletion", tombs[0].DeletedAt)
	}

	if goals, err := store.SavingsGoals().Tombstones(ctx); err != nil || len(goals) != 0 {
		t.Errorf("goal tombstones = %+v, %v", goals, err)
	}

	if err := store.Bills().ClearTombstone(ctx, bill.ID); err != nil {
		t.Fatalf("ClearTombstone failed: %v", err)
	}
	if tombs, err := store.Bills().Tombstones(ctx); err != nil || len(tombs) != 0 {
		t.Errorf("tombstones after clear = %+v, %v", tombs, err)
	}
}

func TestTombstoneRollsBackWithTx(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	goal := models.NewSavingsGoal("Car", decimal.NewFromInt(5000), time.Now(), time.Now())
	if err := store.CreateSavingsGoal(ctx, goal); err != nil {
		t.Fatalf("CreateSavingsGoal failed: %v", err)
	}

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(tx storage.LocalStore) error {
		if err := tx.SavingsGoals().Delete(ctx, goal); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx = %v, want boom", err)
	}

	if tombs, err := store.SavingsGoals().Tombstones(ctx); err != nil || len(tombs) != 0 {
		t.Errorf("tombstones after rollback = %+v, %v", tombs, err)
	}
	if _, err := store.GetSavingsGoal(ctx, goal.ID); err != nil {
		t.Errorf("goal lost after rollback: %v", err)
	}
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := models.NewUser("ada@example.com", "Ada", "hash")
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	byEmail, err := store.GetUserByEmail(ctx, "ada@example.com")
	if err != nil || byEmail == nil || byEmail.ID != user.ID {
		t.Fatalf("GetUserByEmail = %+v, %v", byEmail, err)
	}
	byID, err := store.GetUserByID(ctx, user.ID)
	if err != nil || byID == nil || byID.Email != user.Email {
		t.Fatalf("GetUserByID = %+v, %v", byID, err)
	}
	missing, err := store.GetUserByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil user for missing id, got %+v, %v", missing, err)
	}
	if err := store.CreateUser(ctx, models.NewUser("ada@example.com", "Dup", "hash")); !errors.Is(err, storage.ErrExists) {
		t.Errorf("duplicate email: got %v, want ErrExists", err)
	}
}

func TestCreateDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bill := models.NewBill("Rent", decimal.NewFromInt(1000), due, created)
	if err := store.CreateBill(ctx, bill); err != nil {
		t.Fatalf("CreateBill failed: %v", err)
	}
	if err := store.CreateBill(ctx, bill); !errors.Is(err, storage.ErrExists) {
		t.Errorf("second CreateBill: got %v, want ErrExists", err)
	}

	goal := models.NewSavingsGoal("Car", decimal.NewFromInt(5000), due, created)
	if err := store.CreateSavingsGoal(ctx, goal); err != nil {
		t.Fatalf("CreateSavingsGoal failed: %v", err)
	}
	if err := store.CreateSavingsGoal(ctx, goal); !errors.Is(err, storage.ErrExists) {
		t.Errorf("second CreateSavingsGoal: got %v, want ErrExists", err)
	}
}

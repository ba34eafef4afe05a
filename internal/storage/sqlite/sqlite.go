// Package sqlite provides a SQLite-backed implementation of the storage interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements storage.Store using SQLite.
//
// Writes are serialized by a store-wide mutex; RunInTx holds it for the
// whole transaction. A store handed to a RunInTx callback is bound to the
// transaction and does not take the mutex again.
type SQLiteStore struct {
	db   *sql.DB
	q    queryer
	mu   *sync.Mutex
	inTx bool
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps :memory: databases intact.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := runMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return newFromDB(db), nil
}

// newFromDB wraps an open database without running migrations.
func newFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, q: db, mu: &sync.Mutex{}}
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RunInTx implements storage.LocalStore.
func (s *SQLiteStore) RunInTx(ctx context.Context, fn func(tx storage.LocalStore) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLiteStore{db: s.db, q: tx, mu: s.mu, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// write runs fn under the mutation lock unless the store is transaction-bound.
func (s *SQLiteStore) write(fn func(q queryer) error) error {
	if s.inTx {
		return fn(s.q)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.q)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Collections

type billCollection struct{ s *SQLiteStore }

func (c billCollection) List(ctx context.Context) ([]*models.Bill, error) {
	return c.s.ListBills(ctx)
}
func (c billCollection) Insert(ctx context.Context, b *models.Bill) error {
	return c.s.CreateBill(ctx, b)
}
func (c billCollection) Update(ctx context.Context, b *models.Bill) error {
	return c.s.UpdateBill(ctx, b)
}
func (c billCollection) Delete(ctx context.Context, b *models.Bill) error {
	return c.s.DeleteBill(ctx, b.ID)
}
func (c billCollection) Tombstones(ctx context.Context) ([]models.Tombstone, error) {
	return c.s.ListTombstones(ctx, models.KindBill)
}
func (c billCollection) ClearTombstone(ctx context.Context, id string) error {
	return c.s.ClearTombstone(ctx, models.KindBill, id)
}

type goalCollection struct{ s *SQLiteStore }

func (c goalCollection) List(ctx context.Context) ([]*models.SavingsGoal, error) {
	return c.s.ListSavingsGoals(ctx)
}
func (c goalCollection) Insert(ctx context.Context, g *models.SavingsGoal) error {
	return c.s.CreateSavingsGoal(ctx, g)
}
func (c goalCollection) Update(ctx context.Context, g *models.SavingsGoal) error {
	return c.s.UpdateSavingsGoal(ctx, g)
}
func (c goalCollection) Delete(ctx context.Context, g *models.SavingsGoal) error {
	return c.s.DeleteSavingsGoal(ctx, g.ID)
}
func (c goalCollection) Tombstones(ctx context.Context) ([]models.Tombstone, error) {
	return c.s.ListTombstones(ctx, models.KindSavingsGoal)
}
func (c goalCollection) ClearTombstone(ctx context.Context, id string) error {
	return c.s.ClearTombstone(ctx, models.KindSavingsGoal, id)
}

type settingsCollection struct{ s *SQLiteStore }

func (c settingsCollection) List(ctx context.Context) ([]*models.UserSettings, error) {
	settings, err := c.s.GetSettings(ctx)
	if err != nil || settings == nil {
		return nil, err
	}
	return []*models.UserSettings{settings}, nil
}
func (c settingsCollection) Insert(ctx context.Context, us *models.UserSettings) error {
	return c.s.UpsertSettings(ctx, us)
}
func (c settingsCollection) Update(ctx context.Context, us *models.UserSettings) error {
	return c.s.UpsertSettings(ctx, us)
}
func (c settingsCollection) Delete(ctx context.Context, us *models.UserSettings) error {
	return c.s.DeleteSettings(ctx, us.ID)
}
func (c settingsCollection) Tombstones(ctx context.Context) ([]models.Tombstone, error) {
	return c.s.ListTombstones(ctx, models.KindUserSettings)
}
func (c settingsCollection) ClearTombstone(ctx context.Context, id string) error {
	return c.s.ClearTombstone(ctx, models.KindUserSettings, id)
}

// Bills implements storage.LocalStore.
func (s *SQLiteStore) Bills() storage.Collection[*models.Bill] { return billCollection{s} }

// SavingsGoals implements storage.LocalStore.
func (s *SQLiteStore) SavingsGoals() storage.Collection[*models.SavingsGoal] {
	return goalCollection{s}
}

// Settings implements storage.LocalStore.
func (s *SQLiteStore) Settings() storage.Collection[*models.UserSettings] {
	return settingsCollection{s}
}

// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/ledgerly/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned when inserting a record whose ID is taken.
	ErrExists = errors.New("record already exists")
)

// Collection is the per-kind view of the local store used by the sync
// engine. Implementations must persist each call before returning unless
// they belong to a transaction (see LocalStore.RunInTx).
type Collection[T any] interface {
	// List returns every record of the kind.
	List(ctx context.Context) ([]T, error)
	// Insert persists a new record. The record's ID must already be set.
	Insert(ctx context.Context, record T) error
	// Update overwrites an existing record identified by its ID.
	Update(ctx context.Context, record T) error
	// Delete removes the record and leaves a tombstone for it. Deleting a
	// missing record is not an error and leaves no tombstone.
	Delete(ctx context.Context, record T) error

	// Tombstones lists deletions not yet acknowledged by the remote.
	Tombstones(ctx context.Context) ([]models.Tombstone, error)
	// ClearTombstone forgets the tombstone for id, if any.
	ClearTombstone(ctx context.Context, id string) error
}

// LocalStore is the system of record on a device.
// This abstraction allows the sync engine to run against SQLite in
// production and in-memory fakes in tests.
type LocalStore interface {
	Bills() Collection[*models.Bill]
	SavingsGoals() Collection[*models.SavingsGoal]
	// Settings holds at most one record. Insert and Update both upsert.
	Settings() Collection[*models.UserSettings]

	// RunInTx runs fn against a transactional view of the store and commits
	// when fn returns nil. Mutations from other callers are held off until
	// the transaction ends. fn must only use the store it is given.
	RunInTx(ctx context.Context, fn func(tx LocalStore) error) error
}

// RecordQuery selects remote records of one type for one user.
type RecordQuery struct {
	UserID string
	// Type may be empty only when Deleted is set, to list deletions of
	// every type.
	Type string
	// Deleted selects deletion markers instead of live records.
	Deleted bool

	// SortField is a top-level field name of the record; empty sorts by name.
	SortField  string
	Descending bool

	// Limit caps the number of records; zero means no limit.
	Limit int
}

// RecordStore persists the remote (server side) copies of user records.
type RecordStore interface {
	// SaveRecord upserts a record unless the stored copy has a strictly
	// newer UpdatedAt. saved is false when the write was skipped as stale.
	// A record with Deleted set replaces the live copy with a deletion
	// marker under the same rule.
	SaveRecord(ctx context.Context, record *models.RemoteRecord) (saved bool, err error)

	// QueryRecords returns the records matching q.
	QueryRecords(ctx context.Context, q RecordQuery) ([]*models.RemoteRecord, error)
}

// Store is implemented by storage backends that serve both roles.
type Store interface {
	LocalStore
	RecordStore

	// Close releases any resources held by the store.
	Close() error
}

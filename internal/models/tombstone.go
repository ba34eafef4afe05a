package models

import "time"

// Tombstone marks a synchronized record as deleted so the deletion can reach
// other devices. A copy of the record updated after DeletedAt wins over the
// tombstone.
type Tombstone struct {
	Kind      Kind
	ID        string
	DeletedAt time.Time
}

// NewTombstone records the deletion of a record last updated at updated.
// DeletedAt is never before updated.
func NewTombstone(kind Kind, id string, updated, now time.Time) Tombstone {
	return Tombstone{Kind: kind, ID: id, DeletedAt: laterOf(now.UTC(), updated)}
}

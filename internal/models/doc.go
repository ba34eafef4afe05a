// Package models defines the core domain models for ledgerly.
//
// # Synchronized Records
//
// Three record kinds live in the local store and are mirrored to the remote
// record store:
//   - Bill: a payable with a due date, optionally recurring
//   - SavingsGoal: a target amount to reach by a target date
//   - UserSettings: per-user preferences, at most one per store
//
// The local store owns every record. The remote store holds detached copies
// that are reconciled back through the merge engine.
//
// # Matching Records Across Devices
//
// Each record has a stable ID (UUID) that is preferred when matching a remote
// copy to a local one. Records created independently on two devices have
// different IDs, so a ConflictKey (normalized title plus calendar day) is used
// as the fallback to detect "the same real-world item".
//
// # Timestamps
//
// UpdatedAt is the only ordering signal between copies. Every mutation must
// advance it (see Touch); UpdatedAt is never earlier than CreatedAt.
package models

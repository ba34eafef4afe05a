package models

import (
	"strings"
	"time"
)

// DayLayout is the format of the date bucket in a ConflictKey.
const DayLayout = "2006-01-02"

// ConflictKey identifies "the same logical item" across copies that do not
// share an ID. It is a heuristic: two distinct bills with the same title due
// on the same day collapse into one key.
type ConflictKey struct {
	Title string
	Day   string
}

// NewConflictKey normalizes a title and date into a ConflictKey.
func NewConflictKey(title string, date time.Time) ConflictKey {
	return ConflictKey{
		Title: NormalizeTitle(title),
		Day:   date.UTC().Format(DayLayout),
	}
}

// NormalizeTitle lowercases and trims a title for matching.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func (k ConflictKey) String() string {
	return k.Title + "@" + k.Day
}

// Syncable is implemented by every record kind the sync engine reconciles.
// T is the record type itself (e.g. *Bill implements Syncable[*Bill]).
type Syncable[T any] interface {
	// SyncID returns the stable cross-device identifier.
	SyncID() string
	// ConflictKey returns the heuristic match key.
	ConflictKey() ConflictKey
	// LastUpdated returns UpdatedAt.
	LastUpdated() time.Time
	// OverwriteFrom copies every user-visible field and UpdatedAt from other,
	// keeping the receiver's ID and CreatedAt.
	OverwriteFrom(other T)
	// NearDuplicate reports whether other has the same normalized title and
	// its date lies strictly within window of the receiver's date.
	NearDuplicate(other T, window time.Duration) bool
}

// Kind names a synchronized record kind.
type Kind string

const (
	KindBill         Kind = "Bill"
	KindSavingsGoal  Kind = "SavingsGoal"
	KindUserSettings Kind = "UserSettings"
)

// Kinds lists every synchronized kind.
var Kinds = []Kind{KindBill, KindSavingsGoal, KindUserSettings}

// withinWindow reports whether |a-b| < window.
func withinWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < window
}

// laterOf returns t, or floor when t is before floor.
func laterOf(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}

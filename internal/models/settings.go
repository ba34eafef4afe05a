package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// settingsKey is shared by every UserSettings copy: there is one per user.
var settingsKey = ConflictKey{Title: "user-settings"}

// UserSettings holds per-user preferences. The local store keeps at most one.
type UserSettings struct {
	ID string

	MonthlyIncome decimal.Decimal
	MonthlyBudget decimal.Decimal

	NotificationsEnabled bool
	DarkModeEnabled      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUserSettings returns settings with default values.
func NewUserSettings(now time.Time) *UserSettings {
	return &UserSettings{
		ID:                   uuid.New().String(),
		MonthlyIncome:        decimal.Zero,
		MonthlyBudget:        decimal.Zero,
		NotificationsEnabled: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Touch advances UpdatedAt to now. It never moves UpdatedAt backwards.
func (s *UserSettings) Touch(now time.Time) {
	s.UpdatedAt = laterOf(now, s.UpdatedAt)
}

func (s *UserSettings) SyncID() string           { return s.ID }
func (s *UserSettings) LastUpdated() time.Time   { return s.UpdatedAt }
func (s *UserSettings) ConflictKey() ConflictKey { return settingsKey }

// OverwriteFrom copies every field except ID and CreatedAt from other.
func (s *UserSettings) OverwriteFrom(other *UserSettings) {
	s.MonthlyIncome = other.MonthlyIncome
	s.MonthlyBudget = other.MonthlyBudget
	s.NotificationsEnabled = other.NotificationsEnabled
	s.DarkModeEnabled = other.DarkModeEnabled
	s.UpdatedAt = laterOf(other.UpdatedAt, s.CreatedAt)
}

// NearDuplicate is always true: any two settings copies describe the same user.
func (s *UserSettings) NearDuplicate(*UserSettings, time.Duration) bool {
	return true
}

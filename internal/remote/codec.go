package remote

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/pkg/api"
)

// Remote field names. They are part of the wire contract; renaming one
// silently drops data on older clients.
const (
	fieldTitle                = "title"
	fieldAmount               = "amount"
	fieldDueDate              = "dueDate"
	fieldIsPaid               = "isPaid"
	fieldNotes                = "notes"
	fieldCategory             = "category"
	fieldIsRecurring          = "isRecurring"
	fieldRecurrencePeriod     = "recurrencePeriod"
	fieldRecurrenceEndDate    = "recurrenceEndDate"
	fieldGoalType             = "goalType"
	fieldTargetAmount         = "targetAmount"
	fieldCurrentAmount        = "currentAmount"
	fieldTargetDate           = "targetDate"
	fieldMonthlyIncome        = "monthlyIncome"
	fieldMonthlyBudget        = "monthlyBudget"
	fieldNotificationsEnabled = "notificationsEnabled"
	fieldDarkModeEnabled      = "darkModeEnabled"
	fieldCreatedAt            = "createdAt"
	fieldUpdatedAt            = "updatedAt"
)

func millis(t time.Time) *structpb.Value {
	return structpb.NewNumberValue(float64(t.UnixMilli()))
}

func encodeBill(b *models.Bill) *api.Record {
	fields := map[string]*structpb.Value{
		fieldTitle:            structpb.NewStringValue(b.Title),
		fieldAmount:           structpb.NewStringValue(b.Amount.String()),
		fieldDueDate:          millis(b.DueDate),
		fieldIsPaid:           structpb.NewBoolValue(b.IsPaid),
		fieldNotes:            structpb.NewStringValue(b.Notes),
		fieldCategory:         structpb.NewStringValue(b.Category),
		fieldIsRecurring:      structpb.NewBoolValue(b.IsRecurring),
		fieldRecurrencePeriod: structpb.NewStringValue(string(b.RecurrencePeriod)),
		fieldCreatedAt:        millis(b.CreatedAt),
		fieldUpdatedAt:        millis(b.UpdatedAt),
	}
	if b.RecurrenceEndDate != nil {
		fields[fieldRecurrenceEndDate] = millis(*b.RecurrenceEndDate)
	}
	return &api.Record{Type: string(models.KindBill), Name: b.ID, Fields: &structpb.Struct{Fields: fields}}
}

func encodeSavingsGoal(g *models.SavingsGoal) *api.Record {
	fields := map[string]*structpb.Value{
		fieldTitle:         structpb.NewStringValue(g.Title),
		fieldCategory:      structpb.NewStringValue(g.Category),
		fieldGoalType:      structpb.NewStringValue(string(g.GoalType)),
		fieldTargetAmount:  structpb.NewStringValue(g.TargetAmount.String()),
		fieldCurrentAmount: structpb.NewStringValue(g.CurrentAmount.String()),
		fieldTargetDate:    millis(g.TargetDate),
		fieldNotes:         structpb.NewStringValue(g.Notes),
		fieldCreatedAt:     millis(g.CreatedAt),
		fieldUpdatedAt:     millis(g.UpdatedAt),
	}
	return &api.Record{Type: string(models.KindSavingsGoal), Name: g.ID, Fields: &structpb.Struct{Fields: fields}}
}

func encodeSettings(s *models.UserSettings) *api.Record {
	fields := map[string]*structpb.Value{
		fieldMonthlyIncome:        structpb.NewStringValue(s.MonthlyIncome.String()),
		fieldMonthlyBudget:        structpb.NewStringValue(s.MonthlyBudget.String()),
		fieldNotificationsEnabled: structpb.NewBoolValue(s.NotificationsEnabled),
		fieldDarkModeEnabled:      structpb.NewBoolValue(s.DarkModeEnabled),
		fieldCreatedAt:            millis(s.CreatedAt),
		fieldUpdatedAt:            millis(s.UpdatedAt),
	}
	return &api.Record{Type: string(models.KindUserSettings), Name: s.ID, Fields: &structpb.Struct{Fields: fields}}
}

func encodeTombstone(t models.Tombstone) *api.Record {
	return &api.Record{
		Type:    string(t.Kind),
		Name:    t.ID,
		Deleted: true,
		Fields: &structpb.Struct{Fields: map[string]*structpb.Value{
			fieldUpdatedAt: millis(t.DeletedAt),
		}},
	}
}

func decodeTombstone(rec *api.Record) (models.Tombstone, error) {
	deletedAt, ok := newFieldReader(rec).time(fieldUpdatedAt)
	if !ok {
		return models.Tombstone{}, missing(models.Kind(rec.Type), rec.Name, fieldUpdatedAt)
	}
	return models.Tombstone{Kind: models.Kind(rec.Type), ID: rec.Name, DeletedAt: deletedAt}, nil
}

// fieldReader reads typed values from a record's fields. Values of the wrong
// kind are treated as absent.
type fieldReader struct {
	fields map[string]*structpb.Value
}

func newFieldReader(rec *api.Record) fieldReader {
	return fieldReader{fields: rec.Fields.GetFields()}
}

func (r fieldReader) str(key string) (string, bool) {
	v, ok := r.fields[key].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", false
	}
	return v.StringValue, true
}

func (r fieldReader) strOr(key, fallback string) string {
	if s, ok := r.str(key); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

func (r fieldReader) boolOr(key string, fallback bool) bool {
	if v, ok := r.fields[key].GetKind().(*structpb.Value_BoolValue); ok {
		return v.BoolValue
	}
	return fallback
}

func (r fieldReader) decimal(key string) (decimal.Decimal, bool) {
	switch v := r.fields[key].GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(strings.TrimSpace(v.StringValue))
		return d, err == nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(v.NumberValue), true
	default:
		return decimal.Zero, false
	}
}

func (r fieldReader) decimalOr(key string, fallback decimal.Decimal) decimal.Decimal {
	if d, ok := r.decimal(key); ok {
		return d
	}
	return fallback
}

// time accepts Unix milliseconds or an RFC 3339 string.
func (r fieldReader) time(key string) (time.Time, bool) {
	switch v := r.fields[key].GetKind().(type) {
	case *structpb.Value_NumberValue:
		return time.UnixMilli(int64(v.NumberValue)).UTC(), true
	case *structpb.Value_StringValue:
		t, err := time.Parse(time.RFC3339Nano, v.StringValue)
		return t.UTC(), err == nil
	default:
		return time.Time{}, false
	}
}

// timestamps reads createdAt/updatedAt, substituting one for the other when
// missing and clamping updatedAt so it is never before createdAt.
func (r fieldReader) timestamps() (created, updated time.Time) {
	created, hasCreated := r.time(fieldCreatedAt)
	updated, hasUpdated := r.time(fieldUpdatedAt)
	switch {
	case !hasCreated && hasUpdated:
		created = updated
	case hasCreated && !hasUpdated:
		updated = created
	}
	if updated.Before(created) {
		updated = created
	}
	return created, updated
}

func missing(kind models.Kind, name, field string) error {
	return fmt.Errorf("%s %s: %q: %w", kind, name, field, ErrMissingField)
}

func decodeBill(rec *api.Record) (*models.Bill, error) {
	r := newFieldReader(rec)
	title, ok := r.str(fieldTitle)
	if !ok || strings.TrimSpace(title) == "" {
		return nil, missing(models.KindBill, rec.Name, fieldTitle)
	}
	amount, ok := r.decimal(fieldAmount)
	if !ok || !amount.IsPositive() {
		return nil, missing(models.KindBill, rec.Name, fieldAmount)
	}
	dueDate, ok := r.time(fieldDueDate)
	if !ok {
		return nil, missing(models.KindBill, rec.Name, fieldDueDate)
	}

	bill := &models.Bill{
		ID:               rec.Name,
		Title:            title,
		Amount:           amount,
		DueDate:          dueDate,
		IsPaid:           r.boolOr(fieldIsPaid, false),
		Notes:            r.strOr(fieldNotes, ""),
		Category:         r.strOr(fieldCategory, models.DefaultCategory),
		IsRecurring:      r.boolOr(fieldIsRecurring, false),
		RecurrencePeriod: models.ParseRecurrencePeriod(r.strOr(fieldRecurrencePeriod, "")),
	}
	if end, ok := r.time(fieldRecurrenceEndDate); ok {
		bill.RecurrenceEndDate = &end
	}
	bill.CreatedAt, bill.UpdatedAt = r.timestamps()
	return bill, nil
}

func decodeSavingsGoal(rec *api.Record) (*models.SavingsGoal, error) {
	r := newFieldReader(rec)
	title, ok := r.str(fieldTitle)
	if !ok || strings.TrimSpace(title) == "" {
		return nil, missing(models.KindSavingsGoal, rec.Name, fieldTitle)
	}
	target, ok := r.decimal(fieldTargetAmount)
	if !ok || !target.IsPositive() {
		return nil, missing(models.KindSavingsGoal, rec.Name, fieldTargetAmount)
	}
	targetDate, ok := r.time(fieldTargetDate)
	if !ok {
		return nil, missing(models.KindSavingsGoal, rec.Name, fieldTargetDate)
	}

	goal := &models.SavingsGoal{
		ID:            rec.Name,
		Title:         title,
		Category:      r.strOr(fieldCategory, models.DefaultCategory),
		GoalType:      models.ParseGoalType(r.strOr(fieldGoalType, string(models.DefaultGoalType))),
		TargetAmount:  target,
		CurrentAmount: r.decimalOr(fieldCurrentAmount, decimal.Zero),
		TargetDate:    targetDate,
		Notes:         r.strOr(fieldNotes, ""),
	}
	if goal.CurrentAmount.IsNegative() {
		goal.CurrentAmount = decimal.Zero
	}
	goal.CreatedAt, goal.UpdatedAt = r.timestamps()
	return goal, nil
}

func decodeSettings(rec *api.Record) (*models.UserSettings, error) {
	r := newFieldReader(rec)
	defaults := models.NewUserSettings(time.Time{})
	us := &models.UserSettings{
		ID:                   rec.Name,
		MonthlyIncome:        r.decimalOr(fieldMonthlyIncome, defaults.MonthlyIncome),
		MonthlyBudget:        r.decimalOr(fieldMonthlyBudget, defaults.MonthlyBudget),
		NotificationsEnabled: r.boolOr(fieldNotificationsEnabled, defaults.NotificationsEnabled),
		DarkModeEnabled:      r.boolOr(fieldDarkModeEnabled, defaults.DarkModeEnabled),
	}
	us.CreatedAt, us.UpdatedAt = r.timestamps()
	return us, nil
}

package remote

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/pkg/api"
)

// Availability reports whether remote operations are currently permitted.
type Availability interface {
	IsAvailable() bool
}

// AvailabilityFunc adapts a plain function to Availability.
type AvailabilityFunc func() bool

func (f AvailabilityFunc) IsAvailable() bool { return f() }

// Adapter saves and fetches typed records through a RecordClient. Every call
// checks availability first and returns ErrUnavailable without I/O when the
// gate is closed.
type Adapter struct {
	client RecordClient
	gate   Availability
	logger *slog.Logger
}

// NewAdapter creates an adapter. A nil gate is treated as always available.
func NewAdapter(client RecordClient, gate Availability, logger *slog.Logger) *Adapter {
	if gate == nil {
		gate = AvailabilityFunc(func() bool { return true })
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{client: client, gate: gate, logger: logger}
}

// SaveBill upserts a bill remotely.
func (a *Adapter) SaveBill(ctx context.Context, b *models.Bill) (api.SaveAck, error) {
	return a.save(ctx, "save bill", encodeBill(b))
}

// SaveSavingsGoal upserts a savings goal remotely.
func (a *Adapter) SaveSavingsGoal(ctx context.Context, g *models.SavingsGoal) (api.SaveAck, error) {
	return a.save(ctx, "save savings goal", encodeSavingsGoal(g))
}

// SaveSettings upserts the settings singleton remotely.
func (a *Adapter) SaveSettings(ctx context.Context, s *models.UserSettings) (api.SaveAck, error) {
	return a.save(ctx, "save settings", encodeSettings(s))
}

// Delete replaces a record remotely with a deletion marker. The remote keeps
// a copy updated after the deletion and reports saved=false.
func (a *Adapter) Delete(ctx context.Context, t models.Tombstone) (api.SaveAck, error) {
	if !a.gate.IsAvailable() {
		return api.SaveAck{}, ErrUnavailable
	}
	ack, err := a.client.DeleteRecord(ctx, encodeTombstone(t))
	if err != nil {
		return api.SaveAck{}, &TransportError{Op: "delete " + string(t.Kind), Err: err}
	}
	return ack, nil
}

func (a *Adapter) save(ctx context.Context, op string, rec *api.Record) (api.SaveAck, error) {
	if !a.gate.IsAvailable() {
		return api.SaveAck{}, ErrUnavailable
	}
	ack, err := a.client.SaveRecord(ctx, rec)
	if err != nil {
		return api.SaveAck{}, &TransportError{Op: op, Err: err}
	}
	return ack, nil
}

// FetchBills returns every remote bill ordered by due date, then ID.
func (a *Adapter) FetchBills(ctx context.Context) ([]*models.Bill, error) {
	bills, err := fetch(ctx, a, "fetch bills", api.Query{
		Type:      string(models.KindBill),
		SortField: fieldDueDate,
	}, decodeBill)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(bills, func(i, j int) bool {
		if !bills[i].DueDate.Equal(bills[j].DueDate) {
			return bills[i].DueDate.Before(bills[j].DueDate)
		}
		return bills[i].ID < bills[j].ID
	})
	return bills, nil
}

// FetchSavingsGoals returns every remote goal ordered by target date, then ID.
func (a *Adapter) FetchSavingsGoals(ctx context.Context) ([]*models.SavingsGoal, error) {
	goals, err := fetch(ctx, a, "fetch savings goals", api.Query{
		Type:      string(models.KindSavingsGoal),
		SortField: fieldTargetDate,
	}, decodeSavingsGoal)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(goals, func(i, j int) bool {
		if !goals[i].TargetDate.Equal(goals[j].TargetDate) {
			return goals[i].TargetDate.Before(goals[j].TargetDate)
		}
		return goals[i].ID < goals[j].ID
	})
	return goals, nil
}

// FetchSettings returns the most recently updated remote settings record, or
// nil when there is none.
func (a *Adapter) FetchSettings(ctx context.Context) (*models.UserSettings, error) {
	all, err := fetch(ctx, a, "fetch settings", api.Query{
		Type:       string(models.KindUserSettings),
		SortField:  fieldUpdatedAt,
		Descending: true,
		Limit:      1,
	}, decodeSettings)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	latest := all[0]
	for _, s := range all[1:] {
		if s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	return latest, nil
}

// FetchDeletions returns the remote deletion markers of every kind.
func (a *Adapter) FetchDeletions(ctx context.Context) ([]models.Tombstone, error) {
	if !a.gate.IsAvailable() {
		return nil, ErrUnavailable
	}
	records, err := a.client.QueryRecords(ctx, api.Query{Deleted: true})
	if err != nil {
		return nil, &TransportError{Op: "fetch deletions", Err: err}
	}

	out := make([]models.Tombstone, 0, len(records))
	for _, rec := range records {
		if !rec.Deleted {
			continue
		}
		t, err := decodeTombstone(rec)
		if err != nil {
			a.logger.Warn("dropping remote deletion",
				"record_type", rec.Type,
				"record_name", rec.Name,
				"error", err,
			)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func fetch[T any](ctx context.Context, a *Adapter, op string, q api.Query, decode func(*api.Record) (T, error)) ([]T, error) {
	if !a.gate.IsAvailable() {
		return nil, ErrUnavailable
	}
	records, err := a.client.QueryRecords(ctx, q)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	out := make([]T, 0, len(records))
	for _, rec := range records {
		if rec.Type != q.Type || rec.Deleted {
			continue
		}
		item, err := decode(rec)
		if err != nil {
			if !errors.Is(err, ErrMissingField) {
				return nil, err
			}
			a.logger.Warn("dropping remote record",
				"record_type", rec.Type,
				"record_name", rec.Name,
				"error", err,
			)
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

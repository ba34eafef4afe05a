package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/ledgerly/internal/auth"
	"github.com/mmynk/ledgerly/internal/middleware"
	"github.com/mmynk/ledgerly/internal/models"
	"github.com/mmynk/ledgerly/internal/storage"
	"github.com/mmynk/ledgerly/pkg/api"
)

// maxQueryLimit caps a single QueryRecords response.
const maxQueryLimit = 10000

// RecordService stores per-user copies of synced records.
type RecordService struct {
	store  storage.RecordStore
	users  auth.Authenticator
	logger *slog.Logger
	now    func() time.Time
}

// NewRecordService creates a record service backed by store.
func NewRecordService(store storage.RecordStore, users auth.Authenticator, logger *slog.Logger) *RecordService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordService{
		store:  store,
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

func requireUser(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	return userID, nil
}

// SaveRecord upserts one record. A copy with a strictly newer updatedAt is
// kept and the ack reports saved=false.
func (s *RecordService) SaveRecord(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := api.RecordFromStruct(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if !knownKind(rec.Type) {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown record type %q", rec.Type))
	}

	fields, err := protojson.Marshal(rec.Fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	saved, err := s.store.SaveRecord(ctx, &models.RemoteRecord{
		UserID:    userID,
		Type:      rec.Type,
		Name:      rec.Name,
		Fields:    fields,
		UpdatedAt: updatedAt(rec.Fields),
		SavedAt:   s.now().UnixMilli(),
	})
	if err != nil {
		s.logger.Error("Failed to save record", "user_id", userID, "record_type", rec.Type, "record_name", rec.Name, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if !saved {
		s.logger.Debug("Skipped stale record", "user_id", userID, "record_type", rec.Type, "record_name", rec.Name)
	}

	return connect.NewResponse(api.SaveAck{Saved: saved}.ToStruct()), nil
}

// DeleteRecord replaces a record with a deletion marker stamped with the
// request's updatedAt. As with SaveRecord, a stored copy with a strictly
// newer updatedAt wins and the ack reports saved=false.
func (s *RecordService) DeleteRecord(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := api.RecordFromStruct(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if !knownKind(rec.Type) {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown record type %q", rec.Type))
	}

	deletedAt := updatedAt(rec.Fields)
	marker := &structpb.Struct{Fields: map[string]*structpb.Value{
		"updatedAt": structpb.NewNumberValue(float64(deletedAt)),
	}}
	fields, err := protojson.Marshal(marker)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	saved, err := s.store.SaveRecord(ctx, &models.RemoteRecord{
		UserID:    userID,
		Type:      rec.Type,
		Name:      rec.Name,
		Fields:    fields,
		UpdatedAt: deletedAt,
		SavedAt:   s.now().UnixMilli(),
		Deleted:   true,
	})
	if err != nil {
		s.logger.Error("Failed to delete record", "user_id", userID, "record_type", rec.Type, "record_name", rec.Name, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if !saved {
		s.logger.Debug("Skipped stale delete", "user_id", userID, "record_type", rec.Type, "record_name", rec.Name)
	}

	return connect.NewResponse(api.SaveAck{Saved: saved}.ToStruct()), nil
}

// QueryRecords lists the caller's records of one type, or their deletion
// markers.
func (s *RecordService) QueryRecords(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	q, err := api.QueryFromStruct(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if q.Limit < 0 || q.Limit > maxQueryLimit {
		q.Limit = maxQueryLimit
	}

	stored, err := s.store.QueryRecords(ctx, storage.RecordQuery{
		UserID:     userID,
		Type:       q.Type,
		SortField:  q.SortField,
		Descending: q.Descending,
		Limit:      q.Limit,
		Deleted:    q.Deleted,
	})
	if err != nil {
		s.logger.Error("Failed to query records", "user_id", userID, "record_type", q.Type, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	records := make([]*api.Record, 0, len(stored))
	for _, r := range stored {
		fields := &structpb.Struct{}
		if err := protojson.Unmarshal(r.Fields, fields); err != nil {
			s.logger.Warn("Skipping corrupt record", "user_id", userID, "record_type", r.Type, "record_name", r.Name, "error", err)
			continue
		}
		records = append(records, &api.Record{Type: r.Type, Name: r.Name, Fields: fields, Deleted: r.Deleted})
	}

	return connect.NewResponse(api.RecordsToStruct(records)), nil
}

// AccountStatus reports whether the caller's account may sync. Requests
// without a valid token are rejected by the auth interceptor before this
// runs.
func (s *RecordService) AccountStatus(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	status := api.AccountAvailable
	if _, err := s.users.Lookup(ctx, userID); err != nil {
		if !errors.Is(err, auth.ErrUnknownUser) {
			s.logger.Error("Failed to look up account", "user_id", userID, "error", err)
			return nil, connect.NewError(connect.CodeUnavailable, err)
		}
		status = api.AccountNoAccount
	}
	return connect.NewResponse(api.StatusToStruct(status)), nil
}

func updatedAt(fields *structpb.Struct) int64 {
	return int64(fields.GetFields()["updatedAt"].GetNumberValue())
}

func knownKind(t string) bool {
	for _, k := range models.Kinds {
		if string(k) == t {
			return true
		}
	}
	return false
}

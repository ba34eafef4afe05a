package api

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// RecordServiceName is the fully-qualified name of the record service.
	RecordServiceName = "ledgerly.records.v1.RecordService"

	SaveRecordProcedure    = "/" + RecordServiceName + "/SaveRecord"
	QueryRecordsProcedure  = "/" + RecordServiceName + "/QueryRecords"
	DeleteRecordProcedure  = "/" + RecordServiceName + "/DeleteRecord"
	AccountStatusProcedure = "/" + RecordServiceName + "/AccountStatus"
)

// AccountStatus is the remote account state reported by AccountStatus.
type AccountStatus string

const (
	AccountAvailable              AccountStatus = "available"
	AccountNoAccount              AccountStatus = "no_account"
	AccountRestricted             AccountStatus = "restricted"
	AccountTemporarilyUnavailable AccountStatus = "temporarily_unavailable"
	AccountCouldNotDetermine      AccountStatus = "could_not_determine"
)

// ErrMalformed is returned when a message lacks a required envelope field.
var ErrMalformed = errors.New("malformed message")

// Record is a typed remote record. A deleted record carries only the
// updatedAt field, set to the time of deletion.
type Record struct {
	Type    string
	Name    string
	Fields  *structpb.Struct
	Deleted bool
}

// ToStruct encodes the record envelope.
func (r *Record) ToStruct() *structpb.Struct {
	fields := r.Fields
	if fields == nil {
		fields = &structpb.Struct{Fields: map[string]*structpb.Value{}}
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"recordType": structpb.NewStringValue(r.Type),
		"recordName": structpb.NewStringValue(r.Name),
		"fields":     structpb.NewStructValue(fields),
		"deleted":    structpb.NewBoolValue(r.Deleted),
	}}
}

// RecordFromStruct decodes a record envelope.
func RecordFromStruct(s *structpb.Struct) (*Record, error) {
	rec := &Record{
		Type:    GetString(s, "recordType"),
		Name:    GetString(s, "recordName"),
		Fields:  s.GetFields()["fields"].GetStructValue(),
		Deleted: s.GetFields()["deleted"].GetBoolValue(),
	}
	if rec.Type == "" || rec.Name == "" {
		return nil, fmt.Errorf("record envelope without type or name: %w", ErrMalformed)
	}
	if rec.Fields == nil {
		rec.Fields = &structpb.Struct{Fields: map[string]*structpb.Value{}}
	}
	return rec, nil
}

// Query selects records of one type for the calling user. With Deleted set
// it selects deletion markers instead, and Type may be empty to select those
// of every type.
type Query struct {
	Type       string
	SortField  string
	Descending bool
	Limit      int
	Deleted    bool
}

// ToStruct encodes the query.
func (q Query) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"recordType": structpb.NewStringValue(q.Type),
		"sortBy":     structpb.NewStringValue(q.SortField),
		"descending": structpb.NewBoolValue(q.Descending),
		"limit":      structpb.NewNumberValue(float64(q.Limit)),
		"deleted":    structpb.NewBoolValue(q.Deleted),
	}}
}

// QueryFromStruct decodes a query.
func QueryFromStruct(s *structpb.Struct) (Query, error) {
	q := Query{
		Type:       GetString(s, "recordType"),
		SortField:  GetString(s, "sortBy"),
		Descending: s.GetFields()["descending"].GetBoolValue(),
		Limit:      int(s.GetFields()["limit"].GetNumberValue()),
		Deleted:    s.GetFields()["deleted"].GetBoolValue(),
	}
	if q.Type == "" && !q.Deleted {
		return q, fmt.Errorf("query without record type: %w", ErrMalformed)
	}
	return q, nil
}

// RecordsToStruct encodes a query result.
func RecordsToStruct(records []*Record) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(records))
	for _, r := range records {
		values = append(values, structpb.NewStructValue(r.ToStruct()))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"records": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

// RecordsFromStruct decodes a query result. Envelopes that cannot be decoded
// are returned in skipped rather than failing the whole result.
func RecordsFromStruct(s *structpb.Struct) (records []*Record, skipped int) {
	for _, v := range s.GetFields()["records"].GetListValue().GetValues() {
		rec, err := RecordFromStruct(v.GetStructValue())
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

// SaveAck acknowledges a SaveRecord call. Saved is false when the server
// kept a strictly newer copy.
type SaveAck struct {
	Saved bool
}

// ToStruct encodes the ack.
func (a SaveAck) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"saved": structpb.NewBoolValue(a.Saved),
	}}
}

// SaveAckFromStruct decodes an ack.
func SaveAckFromStruct(s *structpb.Struct) SaveAck {
	return SaveAck{Saved: s.GetFields()["saved"].GetBoolValue()}
}

// StatusToStruct encodes an AccountStatus response.
func StatusToStruct(status AccountStatus) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"status": structpb.NewStringValue(string(status)),
	}}
}

// StatusFromStruct decodes an AccountStatus response.
func StatusFromStruct(s *structpb.Struct) AccountStatus {
	switch status := AccountStatus(GetString(s, "status")); status {
	case AccountAvailable, AccountNoAccount, AccountRestricted, AccountTemporarilyUnavailable:
		return status
	default:
		return AccountCouldNotDetermine
	}
}

// GetString returns the string field key of s, or "" when absent or not a string.
func GetString(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

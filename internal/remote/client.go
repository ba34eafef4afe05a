package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/ledgerly/pkg/api"
)

// RecordClient is the remote record store as seen by the adapter.
type RecordClient interface {
	SaveRecord(ctx context.Context, rec *api.Record) (api.SaveAck, error)
	QueryRecords(ctx context.Context, q api.Query) ([]*api.Record, error)
	DeleteRecord(ctx context.Context, rec *api.Record) (api.SaveAck, error)
}

// TokenSource returns the bearer token for the current session, or "" when
// signed out.
type TokenSource func() string

// ConnectClient talks to the record service over connect.
type ConnectClient struct {
	save   *connect.Client[structpb.Struct, structpb.Struct]
	query  *connect.Client[structpb.Struct, structpb.Struct]
	del    *connect.Client[structpb.Struct, structpb.Struct]
	status *connect.Client[structpb.Struct, structpb.Struct]
}

var _ RecordClient = (*ConnectClient)(nil)

// NewConnectClient creates a record client for the server at baseURL.
func NewConnectClient(httpClient connect.HTTPClient, baseURL string, tokens TokenSource, opts ...connect.ClientOption) *ConnectClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithInterceptors(BearerToken(tokens))}, opts...)
	return &ConnectClient{
		save:   connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+api.SaveRecordProcedure, opts...),
		query:  connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+api.QueryRecordsProcedure, opts...),
		del:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+api.DeleteRecordProcedure, opts...),
		status: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+api.AccountStatusProcedure, opts...),
	}
}

// BearerToken returns a client interceptor that attaches the session token.
func BearerToken(tokens TokenSource) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if tokens != nil {
				if token := tokens(); token != "" {
					req.Header().Set("Authorization", "Bearer "+token)
				}
			}
			return next(ctx, req)
		}
	}
}

// SaveRecord upserts a record on the server.
func (c *ConnectClient) SaveRecord(ctx context.Context, rec *api.Record) (api.SaveAck, error) {
	resp, err := c.save.CallUnary(ctx, connect.NewRequest(rec.ToStruct()))
	if err != nil {
		return api.SaveAck{}, err
	}
	return api.SaveAckFromStruct(resp.Msg), nil
}

// QueryRecords lists records of one type. Envelopes that fail to decode are
// skipped.
func (c *ConnectClient) QueryRecords(ctx context.Context, q api.Query) ([]*api.Record, error) {
	resp, err := c.query.CallUnary(ctx, connect.NewRequest(q.ToStruct()))
	if err != nil {
		return nil, err
	}
	records, _ := api.RecordsFromStruct(resp.Msg)
	return records, nil
}

// DeleteRecord replaces a record on the server with a deletion marker.
func (c *ConnectClient) DeleteRecord(ctx context.Context, rec *api.Record) (api.SaveAck, error) {
	resp, err := c.del.CallUnary(ctx, connect.NewRequest(rec.ToStruct()))
	if err != nil {
		return api.SaveAck{}, err
	}
	return api.SaveAckFromStruct(resp.Msg), nil
}

// AccountStatus asks the server whether the session's account can sync.
// Authentication failures are reported as statuses, not errors.
func (c *ConnectClient) AccountStatus(ctx context.Context) (api.AccountStatus, error) {
	resp, err := c.status.CallUnary(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		var connectErr *connect.Error
		if errors.As(err, &connectErr) {
			switch connectErr.Code() {
			case connect.CodeUnauthenticated:
				return api.AccountNoAccount, nil
			case connect.CodePermissionDenied:
				return api.AccountRestricted, nil
			case connect.CodeUnavailable:
				return api.AccountTemporarilyUnavailable, nil
			}
		}
		return api.AccountCouldNotDetermine, err
	}
	return api.StatusFromStruct(resp.Msg), nil
}

// AuthClient calls the account service.
type AuthClient struct {
	register *connect.Client[structpb.Struct, structpb.Struct]
	login    *connect.Client[structpb.Struct, structpb.Struct]
}

// NewAuthClient creates an account client for the server at baseURL.
func NewAuthClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AuthClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &AuthClient{
		register: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+api.RegisterProcedure, opts...),
		login:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+api.LoginProcedure, opts...),
	}
}

// Register creates an account and returns its first session.
func (c *AuthClient) Register(ctx context.Context, creds api.Credentials) (api.Session, error) {
	resp, err := c.register.CallUnary(ctx, connect.NewRequest(creds.ToStruct()))
	if err != nil {
		return api.Session{}, fmt.Errorf("failed to register: %w", err)
	}
	return api.SessionFromStruct(resp.Msg), nil
}

// Login exchanges credentials for a session.
func (c *AuthClient) Login(ctx context.Context, creds api.Credentials) (api.Session, error) {
	resp, err := c.login.CallUnary(ctx, connect.NewRequest(creds.ToStruct()))
	if err != nil {
		return api.Session{}, fmt.Errorf("failed to login: %w", err)
	}
	return api.SessionFromStruct(resp.Msg), nil
}

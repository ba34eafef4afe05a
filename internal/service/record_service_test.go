package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mmynk/ledgerly/internal/auth"
	"github.com/mmynk/ledgerly/internal/metrics"
	"github.com/mmynk/ledgerly/internal/middleware"
	"github.com/mmynk/ledgerly/internal/remote"
	"github.com/mmynk/ledgerly/internal/storage/sqlite"
	"github.com/mmynk/ledgerly/pkg/api"
)

type testServer struct {
	url  string
	auth *remote.AuthClient
}

// setupTestServer starts the auth and record services on an httptest server
// backed by a fresh SQLite database.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authenticator := auth.NewPasswordAuthenticator(store, bcrypt.MinCost)
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	mux := http.NewServeMux()
	authPath, authHandler := NewAuthServiceHandler(
		NewAuthService(authenticator, jwtManager, logger),
		connect.WithInterceptors(middleware.LoggingInterceptor(logger)),
	)
	mux.Handle(authPath, authHandler)
	recordPath, recordHandler := NewRecordServiceHandler(
		NewRecordService(store, authenticator, logger),
		connect.WithInterceptors(
			middleware.MetricsInterceptor(metrics.NewRPC(prometheus.NewRegistry())),
			middleware.LoggingInterceptor(logger),
			middleware.RequireAuth(jwtManager),
		),
	)
	mux.Handle(recordPath, recordHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})

	return &testServer{
		url:  server.URL,
		auth: remote.NewAuthClient(http.DefaultClient, server.URL),
	}
}

func (ts *testServer) register(t *testing.T, email string) api.Session {
	t.Helper()
	session, err := ts.auth.Register(context.Background(), api.Credentials{
		Email:       email,
		Password:    "password123",
		DisplayName: "Test User",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if session.Token == "" || session.UserID == "" {
		t.Fatalf("expected token and user ID, got %+v", session)
	}
	return session
}

func (ts *testServer) records(token string) *remote.ConnectClient {
	return remote.NewConnectClient(http.DefaultClient, ts.url, func() string { return token })
}

func billRecord(name, title string, updatedAt int64) *api.Record {
	return &api.Record{
		Type: "Bill",
		Name: name,
		Fields: &structpb.Struct{Fields: map[string]*structpb.Value{
			"title":     structpb.NewStringValue(title),
			"amount":    structpb.NewStringValue("12.50"),
			"dueDate":   structpb.NewNumberValue(1704067200000),
			"updatedAt": structpb.NewNumberValue(float64(updatedAt)),
		}},
	}
}

func TestAuthService(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	ts.register(t, "alice@example.com")

	t.Run("login", func(t *testing.T) {
		session, err := ts.auth.Login(ctx, api.Credentials{Email: "alice@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if session.Email != "alice@example.com" {
			t.Errorf("expected email alice@example.com, got %s", session.Email)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := ts.auth.Login(ctx, api.Credentials{Email: "alice@example.com", Password: "nope-nope"})
		if connect.CodeOf(err) != connect.CodeUnauthenticated {
			t.Errorf("expected Unauthenticated, got %v", err)
		}
	})

	t.Run("duplicate registration", func(t *testing.T) {
		_, err := ts.auth.Register(ctx, api.Credentials{Email: "alice@example.com", Password: "password123", DisplayName: "A"})
		if connect.CodeOf(err) != connect.CodeAlreadyExists {
			t.Errorf("expected AlreadyExists, got %v", err)
		}
	})

	t.Run("missing display name", func(t *testing.T) {
		_, err := ts.auth.Register(ctx, api.Credentials{Email: "bob@example.com", Password: "password123"})
		if connect.CodeOf(err) != connect.CodeInvalidArgument {
			t.Errorf("expected InvalidArgument, got %v", err)
		}
	})
}

func TestAccountStatus(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	session := ts.register(t, "alice@example.com")

	status, err := ts.records(session.Token).AccountStatus(ctx)
	if err != nil {
		t.Fatalf("AccountStatus failed: %v", err)
	}
	if status != api.AccountAvailable {
		t.Errorf("expected available, got %s", status)
	}

	status, err = ts.records("").AccountStatus(ctx)
	if err != nil {
		t.Fatalf("AccountStatus without token failed: %v", err)
	}
	if status != api.AccountNoAccount {
		t.Errorf("expected no_account without token, got %s", status)
	}
}

func TestSaveAndQueryRecords(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	alice := ts.records(ts.register(t, "alice@example.com").Token)
	bob := ts.records(ts.register(t, "bob@example.com").Token)

	ack, err := alice.SaveRecord(ctx, billRecord("b1", "Rent", 2000))
	if err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}
	if !ack.Saved {
		t.Error("expected first save to be applied")
	}

	t.Run("stale write is skipped", func(t *testing.T) {
		ack, err := alice.SaveRecord(ctx, billRecord("b1", "Old Rent", 1000))
		if err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
		if ack.Saved {
			t.Error("expected stale save to be skipped")
		}

		records, err := alice.QueryRecords(ctx, api.Query{Type: "Bill"})
		if err != nil {
			t.Fatalf("QueryRecords failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
		if got := api.GetString(records[0].Fields, "title"); got != "Rent" {
			t.Errorf("expected title Rent, got %q", got)
		}
	})

	t.Run("records are per user", func(t *testing.T) {
		records, err := bob.QueryRecords(ctx, api.Query{Type: "Bill"})
		if err != nil {
			t.Fatalf("QueryRecords failed: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("expected no records for bob, got %d", len(records))
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		rec := billRecord("x", "X", 1)
		rec.Type = "invoice"
		_, err := alice.SaveRecord(ctx, rec)
		if connect.CodeOf(err) != connect.CodeInvalidArgument {
			t.Errorf("expected InvalidArgument, got %v", err)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		_, err := ts.records("").SaveRecord(ctx, billRecord("b2", "Power", 1))
		var connectErr *connect.Error
		if !errors.As(err, &connectErr) || connectErr.Code() != connect.CodeUnauthenticated {
			t.Errorf("expected Unauthenticated, got %v", err)
		}
	})
}

func TestDeleteRecord(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	alice := ts.records(ts.register(t, "alice@example.com").Token)

	if _, err := alice.SaveRecord(ctx, billRecord("b1", "Rent", 2000)); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}
	if _, err := alice.SaveRecord(ctx, billRecord("b2", "Power", 2000)); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	deletion := &api.Record{Type: "Bill", Name: "b1", Deleted: true, Fields: &structpb.Struct{Fields: map[string]*structpb.Value{
		"updatedAt": structpb.NewNumberValue(3000),
	}}}
	ack, err := alice.DeleteRecord(ctx, deletion)
	if err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
	if !ack.Saved {
		t.Error("expected delete to be applied")
	}

	t.Run("stale upload does not restore", func(t *testing.T) {
		ack, err := alice.SaveRecord(ctx, billRecord("b1", "Rent", 2500))
		if err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
		if ack.Saved {
			t.Error("expected upload older than the delete to be skipped")
		}

		records, err := alice.QueryRecords(ctx, api.Query{Type: "Bill"})
		if err != nil {
			t.Fatalf("QueryRecords failed: %v", err)
		}
		if len(records) != 1 || records[0].Name != "b2" {
			t.Fatalf("expected only b2, got %+v", records)
		}
	})

	t.Run("deletions are listed across types", func(t *testing.T) {
		records, err := alice.QueryRecords(ctx, api.Query{Deleted: true})
		if err != nil {
			t.Fatalf("QueryRecords failed: %v", err)
		}
		if len(records) != 1 || records[0].Name != "b1" || !records[0].Deleted {
			t.Fatalf("expected b1 deletion, got %+v", records)
		}
		if got := records[0].Fields.GetFields()["updatedAt"].GetNumberValue(); got != 3000 {
			t.Errorf("deletion updatedAt = %v, want 3000", got)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		bad := &api.Record{Type: "invoice", Name: "x", Deleted: true}
		if _, err := alice.DeleteRecord(ctx, bad); connect.CodeOf(err) != connect.CodeInvalidArgument {
			t.Errorf("expected InvalidArgument, got %v", err)
		}
	})
}

package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/auth"
	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/middleware"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/storage/sqlite"
	pb "github.com/mmynk/settleup/pkg/api"
)

type testEnv struct {
	store    *sqlite.SQLiteStore
	ledger   pb.LedgerServiceClient
	groups   pb.GroupServiceClient
	expenses pb.ExpenseServiceClient
}

// setupTestServer serves all three services over a temp SQLite database.
// Callers identify themselves with the debug user header.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	l := ledger.New(store)
	interceptors := connect.WithInterceptors(
		middleware.RequireAuth(auth.DevAuthenticator{}),
		middleware.LoggingInterceptor(),
	)

	mux := http.NewServeMux()
	mux.Handle(pb.NewLedgerServiceHandler(NewLedgerService(l, store), interceptors))
	mux.Handle(pb.NewGroupServiceHandler(NewGroupService(store, l), interceptors))
	mux.Handle(pb.NewExpenseServiceHandler(NewExpenseService(store, l), interceptors))

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})

	return &testEnv{
		store:    store,
		ledger:   pb.NewLedgerServiceClient(http.DefaultClient, server.URL),
		groups:   pb.NewGroupServiceClient(http.DefaultClient, server.URL),
		expenses: pb.NewExpenseServiceClient(http.DefaultClient, server.URL),
	}
}

// as builds a request made by userID.
func as[T any](userID string, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if userID != "" {
		req.Header().Set(auth.DebugUserHeader, userID)
	}
	return req
}

// seedUsers creates users whose ID is the lowercase of their name.
func (env *testEnv) seedUsers(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		user := &models.User{ID: strings.ToLower(name), Name: name}
		if err := env.store.CreateUser(context.Background(), user); err != nil {
			t.Fatalf("failed to seed user %s: %v", name, err)
		}
	}
}

// seedGroup creates Alice, Bob and Carol and a group owned by alice with all three.
func (env *testEnv) seedGroup(t *testing.T) string {
	t.Helper()
	env.seedUsers(t, "Alice", "Bob", "Carol")

	resp, err := env.groups.CreateGroup(context.Background(), as("alice", &pb.CreateGroupRequest{
		Name:    "Trip",
		Members: []string{"bob", "carol"},
	}))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return resp.Msg.Group.ID
}

func assertCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", want)
	}
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected connect.Error, got %T", err)
	}
	if connectErr.Code() != want {
		t.Errorf("expected %v, got %v (%s)", want, connectErr.Code(), connectErr.Message())
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settleup/internal/auth"
	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/metrics"
	"github.com/mmynk/settleup/internal/middleware"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/service"
	"github.com/mmynk/settleup/internal/storage/memory"
	pb "github.com/mmynk/settleup/pkg/api"
)

type harness struct {
	server  *httptest.Server
	store   *memory.Store
	groupID string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	for _, name := range []string{"alice", "bob", "carol", "mallory"} {
		require.NoError(t, store.CreateUser(ctx, &models.User{ID: name, Name: strings.ToUpper(name[:1]) + name[1:]}))
	}
	group := &models.Group{Name: "Trip", Members: []string{"alice", "bob", "carol"}}
	require.NoError(t, store.CreateGroup(ctx, group))

	// alice pays 120.00 for all three
	amount := money.New(12000)
	require.NoError(t, store.CreateExpense(ctx, &models.Expense{
		GroupID:     group.ID,
		Description: "Dinner",
		Amount:      amount,
		Payers:      []models.Share{{User: models.ByID[models.User]("alice"), Amount: amount}},
		Participants: []models.Share{
			{User: models.ByID[models.User]("alice"), Amount: 4000},
			{User: models.ByID[models.User]("bob"), Amount: 4000},
			{User: models.ByID[models.User]("carol"), Amount: 4000},
		},
	}))

	reg := prometheus.NewRegistry()
	l := ledger.New(store, ledger.WithMetrics(metrics.New(reg)))
	ledgerSvc := service.NewLedgerService(l, store)
	interceptors := connect.WithInterceptors(middleware.RequireAuth(auth.DevAuthenticator{}))
	path, handler := pb.NewLedgerServiceHandler(ledgerSvc, interceptors)

	server := httptest.NewServer(NewRouter(RouterOptions{
		Ledger:        ledgerSvc,
		Authenticator: auth.DevAuthenticator{},
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Connect:       []Mount{{Path: path, Handler: handler}},
	}))
	t.Cleanup(server.Close)

	return &harness{server: server, store: store, groupID: group.ID}
}

func (h *harness) do(t *testing.T, method, path, userID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set(auth.DebugUserHeader, userID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/v1/groups/"+h.groupID+"/balances", "alice", "")

	resp := h.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sb strings.Builder
	_, err := io.Copy(&sb, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), `ledger_computations_total{operation="balances",outcome="ok"} 1`)
}

func TestGetBalances(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/v1/groups/"+h.groupID+"/balances", "bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	got := decode[pb.GetBalancesResponse](t, resp)
	require.Len(t, got.Balances, 3)
	assert.Equal(t, "alice", got.Balances[0].UserID)
	assert.Equal(t, int64(8000), got.Balances[0].NetMinor)
	assert.Equal(t, "-40.00", got.Balances[1].Net)
}

func TestSettlementPlanAndSettleUp(t *testing.T) {
	h := newHarness(t)
	base := "/v1/groups/" + h.groupID

	plan := decode[pb.GetSettlementPlanResponse](t, h.do(t, http.MethodGet, base+"/settlement-plan", "carol", ""))
	require.Len(t, plan.Transfers, 2)
	assert.Equal(t, "bob", plan.Transfers[0].FromUserID)
	assert.Equal(t, "carol", plan.Transfers[1].FromUserID)

	resp := h.do(t, http.MethodPost, base+"/settle-up", "alice", `{"note":"venmo"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	settled := decode[pb.SettleUpResponse](t, resp)
	require.Len(t, settled.Settlements, 2)
	assert.NotEmpty(t, settled.BatchID)
	assert.Equal(t, "venmo", settled.Settlements[0].Note)

	// nothing left to settle; an empty body is accepted
	resp = h.do(t, http.MethodPost, base+"/settle-up", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[pb.SettleUpResponse](t, resp).Settlements)
}

func TestErrors(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		method string
		path   string
		userID string
		body   string
		status int
		code   string
	}{
		{"no identity", http.MethodGet, "/v1/groups/" + h.groupID + "/balances", "", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not a member", http.MethodGet, "/v1/groups/" + h.groupID + "/balances", "mallory", "", http.StatusForbidden, "FORBIDDEN"},
		{"unknown group", http.MethodGet, "/v1/groups/missing/settlement-plan", "alice", "", http.StatusNotFound, "NOT_FOUND"},
		{"malformed body", http.MethodPost, "/v1/groups/" + h.groupID + "/settle-up", "alice", "{", http.StatusBadRequest, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, tt.method, tt.path, tt.userID, tt.body)
			require.Equal(t, tt.status, resp.StatusCode)

			got := decode[errorResponse](t, resp)
			assert.Equal(t, tt.code, got.Error.Code)
			assert.NotEmpty(t, got.Error.Message)
			assert.True(t, got.Error.RequestID.IsSpecified())
		})
	}
}

func TestValidationErrorDetails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// a participant outside the group poisons the whole computation
	require.NoError(t, h.store.CreateExpense(ctx, &models.Expense{
		GroupID:      h.groupID,
		Description:  "Taxi",
		Amount:       100,
		Payers:       []models.Share{{User: models.ByID[models.User]("alice"), Amount: 100}},
		Participants: []models.Share{{User: models.ByID[models.User]("mallory"), Amount: 100}},
	}))

	resp := h.do(t, http.MethodGet, "/v1/groups/"+h.groupID+"/balances", "alice", "")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	got := decode[errorResponse](t, resp)
	assert.Equal(t, "VALIDATION_ERROR", got.Error.Code)
	details, err := got.Error.Details.Get()
	require.NoError(t, err)
	assert.Equal(t, "expense", details["kind"])
}

func TestConnectMounted(t *testing.T) {
	h := newHarness(t)
	client := pb.NewLedgerServiceClient(http.DefaultClient, h.server.URL)

	req := connect.NewRequest(&pb.GetBalancesRequest{GroupID: h.groupID})
	req.Header().Set(auth.DebugUserHeader, "carol")
	resp, err := client.GetBalances(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, resp.Msg.Balances, 3)

	_, err = client.GetBalances(context.Background(), connect.NewRequest(&pb.GetBalancesRequest{GroupID: h.groupID}))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

package service

import (
	"context"
	"testing"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/models"
	pb "github.com/mmynk/settleup/pkg/api"
)

func TestCreateExpense_EqualSplit(t *testing.T) {
	env := setupTestServer(t)
	groupID := env.seedGroup(t)

	resp, err := env.expenses.CreateExpense(context.Background(), as("alice", &pb.CreateExpenseRequest{
		GroupID: groupID,
		Expense: pb.ExpenseInput{
			Amount:  "100.00",
			PaidBy:  []string{"alice"},
			PaidFor: []string{"carol", "alice", "bob"},
		},
	}))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	e := resp.Msg.Expense
	if e.ID == "" {
		t.Error("expected non-empty expense ID")
	}
	if e.AmountMinor != 10000 || e.Amount != "100.00" {
		t.Errorf("amount: expected 10000 / 100.00, got %d / %s", e.AmountMinor, e.Amount)
	}
	if e.Description != "Split with Alice, Bob, Carol" {
		t.Errorf("description: got %q", e.Description)
	}

	// Remainder goes to the lowest ids first.
	want := map[string]int64{"alice": 3334, "bob": 3333, "carol": 3333}
	if len(e.Participants) != 3 {
		t.Fatalf("participants: expected 3, got %d", len(e.Participants))
	}
	for _, p := range e.Participants {
		if p.AmountMinor != want[p.UserID] {
			t.Errorf("%s: expected %d, got %d", p.UserID, want[p.UserID], p.AmountMinor)
		}
	}
}

func TestCreateExpense_ExplicitShares(t *testing.T) {
	env := setupTestServer(t)
	groupID := env.seedGroup(t)

	resp, err := env.expenses.CreateExpense(context.Background(), as("bob", &pb.CreateExpenseRequest{
		GroupID: groupID,
		Expense: pb.ExpenseInput{
			Description: "Groceries",
			Category:    "food",
			AmountMinor: 5000,
			Payers: []pb.Share{
				{UserID: "alice", AmountMinor: 3000},
				{UserID: "bob", Amount: "20.00"},
			},
			Participants: []pb.Share{
				{UserID: "carol", AmountMinor: 5000},
			},
		},
	}))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if resp.Msg.Expense.Description != "Groceries" {
		t.Errorf("description: expected Groceries, got %q", resp.Msg.Expense.Description)
	}
	if resp.Msg.Expense.Payers[0].UserName != "Alice" {
		t.Errorf("payer name: expected Alice, got %q", resp.Msg.Expense.Payers[0].UserName)
	}

	balances, err := env.ledger.GetBalances(context.Background(), as("carol", &pb.GetBalancesRequest{GroupID: groupID}))
	if err != nil {
		t.Fatalf("GetBalances failed: %v", err)
	}
	want := map[string]int64{"alice": 3000, "bob": 2000, "carol": -5000}
	for _, b := range balances.Msg.Balances {
		if b.NetMinor != want[b.UserID] {
			t.Errorf("%s: expected %d, got %d", b.UserID, want[b.UserID], b.NetMinor)
		}
	}
}

func TestCreateExpense_Invalid(t *testing.T) {
	env := setupTestServer(t)
	groupID := env.seedGroup(t)
	env.seedUsers(t, "Mallory")

	tests := []struct {
		name   string
		caller string
		input  pb.ExpenseInput
		want   connect.Code
	}{
		{
			name:   "participant shares do not sum to amount",
			caller: "alice",
			input: pb.ExpenseInput{
				AmountMinor:  1000,
				Payers:       []pb.Share{{UserID: "alice", AmountMinor: 1000}},
				Participants: []pb.Share{{UserID: "bob", AmountMinor: 999}},
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name:   "participant outside the group",
			caller: "alice",
			input:  pb.ExpenseInput{AmountMinor: 1000, PaidBy: []string{"alice"}, PaidFor: []string{"mallory"}},
			want:   connect.CodeInvalidArgument,
		},
		{
			name:   "unknown user",
			caller: "alice",
			input:  pb.ExpenseInput{AmountMinor: 1000, PaidBy: []string{"alice"}, PaidFor: []string{"ghost"}},
			want:   connect.CodeInvalidArgument,
		},
		{
			name:   "sub-cent amount",
			caller: "alice",
			input:  pb.ExpenseInput{Amount: "10.005", PaidBy: []string{"alice"}, PaidFor: []string{"bob"}},
			want:   connect.CodeInvalidArgument,
		},
		{
			name:   "zero amount",
			caller: "alice",
			input:  pb.ExpenseInput{PaidBy: []string{"alice"}, PaidFor: []string{"bob"}},
			want:   connect.CodeInvalidArgument,
		},
		{
			name:   "both share styles",
			caller: "alice",
			input: pb.ExpenseInput{
				AmountMinor: 1000,
				Payers:      []pb.Share{{UserID: "alice", AmountMinor: 1000}},
				PaidFor:     []string{"bob"},
			},
			want: connect.CodeInvalidArgument,
		},
		{
			name:   "no shares",
			caller: "alice",
			input:  pb.ExpenseInput{AmountMinor: 1000},
			want:   connect.CodeInvalidArgument,
		},
		{
			name:   "caller not a member",
			caller: "mallory",
			input:  pb.ExpenseInput{AmountMinor: 1000, PaidBy: []string{"alice"}, PaidFor: []string{"bob"}},
			want:   connect.CodePermissionDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.expenses.CreateExpense(context.Background(), as(tt.caller, &pb.CreateExpenseRequest{
				GroupID: groupID,
				Expense: tt.input,
			}))
			assertCode(t, err, tt.want)
		})
	}

	list, err := env.expenses.ListExpenses(context.Background(), as("alice", &pb.ListExpensesRequest{GroupID: groupID}))
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}
	if len(list.Msg.Expenses) != 0 {
		t.Errorf("rejected expenses must not be stored, found %d", len(list.Msg.Expenses))
	}
}

func TestUpdateAndDeleteExpense(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	groupID := env.seedGroup(t)

	created, err := env.expenses.CreateExpense(ctx, as("alice", &pb.CreateExpenseRequest{
		GroupID: groupID,
		Expense: pb.ExpenseInput{Description: "Original Dinner", AmountMinor: 9000, PaidBy: []string{"alice"}, PaidFor: []string{"alice", "bob", "carol"}},
	}))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	expenseID := created.Msg.Expense.ID

	updated, err := env.expenses.UpdateExpense(ctx, as("bob", &pb.UpdateExpenseRequest{
		ExpenseID: expenseID,
		Expense:   pb.ExpenseInput{Description: "Updated Dinner", AmountMinor: 6000, PaidBy: []string{"bob"}, PaidFor: []string{"alice", "bob"}},
	}))
	if err != nil {
		t.Fatalf("UpdateExpense failed: %v", err)
	}
	if updated.Msg.Expense.ID != expenseID {
		t.Errorf("expected ID %s, got %s", expenseID, updated.Msg.Expense.ID)
	}
	if updated.Msg.Expense.CreatedAt != created.Msg.Expense.CreatedAt {
		t.Error("CreatedAt must survive updates")
	}

	list, err := env.expenses.ListExpenses(ctx, as("carol", &pb.ListExpensesRequest{GroupID: groupID}))
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}
	if len(list.Msg.Expenses) != 1 {
		t.Fatalf("expected 1 expense, got %d", len(list.Msg.Expenses))
	}
	if got := list.Msg.Expenses[0]; got.Description != "Updated Dinner" || got.AmountMinor != 6000 {
		t.Errorf("expense not updated: %+v", got)
	}
	if name := list.Msg.Expenses[0].Payers[0].UserName; name != "Bob" {
		t.Errorf("payer name: expected Bob, got %q", name)
	}

	balances, err := env.ledger.GetBalances(ctx, as("alice", &pb.GetBalancesRequest{GroupID: groupID}))
	if err != nil {
		t.Fatalf("GetBalances failed: %v", err)
	}
	want := map[string]int64{"alice": -3000, "bob": 3000, "carol": 0}
	for _, b := range balances.Msg.Balances {
		if b.NetMinor != want[b.UserID] {
			t.Errorf("%s: expected %d, got %d", b.UserID, want[b.UserID], b.NetMinor)
		}
	}

	if _, err := env.expenses.DeleteExpense(ctx, as("carol", &pb.DeleteExpenseRequest{ExpenseID: expenseID})); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}
	_, err = env.expenses.DeleteExpense(ctx, as("carol", &pb.DeleteExpenseRequest{ExpenseID: expenseID}))
	assertCode(t, err, connect.CodeNotFound)
}

func TestUpdateExpense_NonMember(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	groupID := env.seedGroup(t)
	env.seedUsers(t, "Mallory")

	created, err := env.expenses.CreateExpense(ctx, as("alice", &pb.CreateExpenseRequest{
		GroupID: groupID,
		Expense: pb.ExpenseInput{AmountMinor: 100, PaidBy: []string{"alice"}, PaidFor: []string{"bob"}},
	}))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	_, err = env.expenses.UpdateExpense(ctx, as("mallory", &pb.UpdateExpenseRequest{
		ExpenseID: created.Msg.Expense.ID,
		Expense:   pb.ExpenseInput{AmountMinor: 1, PaidBy: []string{"alice"}, PaidFor: []string{"bob"}},
	}))
	assertCode(t, err, connect.CodePermissionDenied)

	_, err = env.expenses.DeleteExpense(ctx, as("mallory", &pb.DeleteExpenseRequest{ExpenseID: created.Msg.Expense.ID}))
	assertCode(t, err, connect.CodePermissionDenied)
}

func TestDefaultDescription(t *testing.T) {
	share := func(id, name string) models.Share {
		if name == "" {
			return models.Share{User: models.ByID[models.User](id)}
		}
		return models.Share{User: models.Resolved(id, models.User{ID: id, Name: name})}
	}

	tests := []struct {
		name   string
		shares []models.Share
		want   string
	}{
		{"one", []models.Share{share("a", "Alice")}, "Split with Alice"},
		{"three", []models.Share{share("a", "Alice"), share("b", "Bob"), share("c", "Carol")}, "Split with Alice, Bob, Carol"},
		{"many", []models.Share{share("a", "Alice"), share("b", "Bob"), share("c", "Carol"), share("d", "Dave")}, "Split with Alice, Bob and 2 others"},
		{"unresolved falls back to id", []models.Share{share("u-1", "")}, "Split with u-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := defaultDescription(&models.Expense{Participants: tt.shares})
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

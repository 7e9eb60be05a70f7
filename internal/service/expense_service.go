package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/storage"
	pb "github.com/mmynk/settleup/pkg/api"
)

// ExpenseService implements the Connect ExpenseService.
type ExpenseService struct {
	store  storage.Store
	ledger *ledger.Service
}

// NewExpenseService creates a new ExpenseService with the given storage backend.
func NewExpenseService(store storage.Store, l *ledger.Service) *ExpenseService {
	return &ExpenseService{store: store, ledger: l}
}

// CreateExpense validates and records a new expense in a group.
func (s *ExpenseService) CreateExpense(ctx context.Context, req *connect.Request[pb.CreateExpenseRequest]) (*connect.Response[pb.CreateExpenseResponse], error) {
	group, _, err := requireMember(ctx, s.store, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}

	expense, err := s.prepare(ctx, group, req.Msg.Expense)
	if err != nil {
		slog.WarnContext(ctx, "CreateExpense validation failed", "group_id", group.ID, "error", err)
		return nil, err
	}

	if err := s.store.CreateExpense(ctx, expense); err != nil {
		slog.ErrorContext(ctx, "CreateExpense failed", "group_id", group.ID, "error", err)
		return nil, toConnectError(err)
	}

	slog.InfoContext(ctx, "Expense created",
		"group_id", group.ID,
		"expense_id", expense.ID,
		"amount", expense.Amount,
		"payers_count", len(expense.Payers),
		"participants_count", len(expense.Participants),
	)

	return connect.NewResponse(&pb.CreateExpenseResponse{Expense: toPBExpense(expense, nil)}), nil
}

// UpdateExpense replaces an expense's amount, shares and labels.
func (s *ExpenseService) UpdateExpense(ctx context.Context, req *connect.Request[pb.UpdateExpenseRequest]) (*connect.Response[pb.UpdateExpenseResponse], error) {
	existing, group, err := s.loadForCaller(ctx, req.Msg.ExpenseID)
	if err != nil {
		return nil, err
	}

	expense, err := s.prepare(ctx, group, req.Msg.Expense)
	if err != nil {
		slog.WarnContext(ctx, "UpdateExpense validation failed", "expense_id", existing.ID, "error", err)
		return nil, err
	}
	expense.ID = existing.ID
	expense.CreatedAt = existing.CreatedAt

	if err := s.store.UpdateExpense(ctx, expense); err != nil {
		slog.ErrorContext(ctx, "UpdateExpense failed", "expense_id", existing.ID, "error", err)
		return nil, toConnectError(err)
	}

	slog.InfoContext(ctx, "Expense updated", "group_id", group.ID, "expense_id", expense.ID)

	return connect.NewResponse(&pb.UpdateExpenseResponse{Expense: toPBExpense(expense, nil)}), nil
}

// DeleteExpense deletes an expense.
func (s *ExpenseService) DeleteExpense(ctx context.Context, req *connect.Request[pb.DeleteExpenseRequest]) (*connect.Response[pb.DeleteExpenseResponse], error) {
	existing, _, err := s.loadForCaller(ctx, req.Msg.ExpenseID)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteExpense(ctx, existing.ID); err != nil {
		slog.ErrorContext(ctx, "DeleteExpense failed", "expense_id", existing.ID, "error", err)
		return nil, toConnectError(err)
	}

	slog.InfoContext(ctx, "Expense deleted", "group_id", existing.GroupID, "expense_id", existing.ID)

	return connect.NewResponse(&pb.DeleteExpenseResponse{}), nil
}

// ListExpenses retrieves all expenses of a group, oldest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, req *connect.Request[pb.ListExpensesRequest]) (*connect.Response[pb.ListExpensesResponse], error) {
	group, _, err := requireMember(ctx, s.store, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}

	expenses, err := s.store.ListExpensesByGroup(ctx, group.ID)
	if err != nil {
		slog.ErrorContext(ctx, "ListExpenses failed", "group_id", group.ID, "error", err)
		return nil, toConnectError(err)
	}

	ids := append([]string(nil), group.Members...)
	for _, e := range expenses {
		ids = append(ids, models.UserIDs(e.Payers)...)
		ids = append(ids, models.UserIDs(e.Participants)...)
	}
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		slog.ErrorContext(ctx, "ListExpenses failed", "group_id", group.ID, "error", err)
		return nil, toConnectError(err)
	}
	names := make(map[string]string, len(users))
	for id, u := range users {
		names[id] = u.Name
	}

	resp := &pb.ListExpensesResponse{Expenses: make([]pb.Expense, len(expenses))}
	for i, e := range expenses {
		resp.Expenses[i] = toPBExpense(e, names)
	}

	slog.InfoContext(ctx, "ListExpenses successful", "group_id", group.ID, "count", len(expenses))

	return connect.NewResponse(resp), nil
}

// prepare builds an expense for group from the request input and validates
// it with the same rules balance computation applies.
func (s *ExpenseService) prepare(ctx context.Context, group *models.Group, in pb.ExpenseInput) (*models.Expense, error) {
	expense, err := expenseFromInput(in)
	if err != nil {
		return nil, err
	}
	expense.GroupID = group.ID

	if err := s.ledger.ValidateExpense(ctx, group, expense); err != nil {
		return nil, toConnectError(err)
	}
	if expense.Description == "" {
		expense.Description = defaultDescription(expense)
	}
	return expense, nil
}

// loadForCaller fetches an expense and checks the caller belongs to its group.
func (s *ExpenseService) loadForCaller(ctx context.Context, expenseID string) (*models.Expense, *models.Group, error) {
	if _, err := callerID(ctx); err != nil {
		return nil, nil, err
	}
	if expenseID == "" {
		return nil, nil, invalidArgument("expense_id required")
	}

	existing, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to get expense", "expense_id", expenseID, "error", err)
		return nil, nil, toConnectError(err)
	}

	group, _, err := requireMember(ctx, s.store, existing.GroupID)
	if err != nil {
		return nil, nil, err
	}
	return existing, group, nil
}

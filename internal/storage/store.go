// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/settleup/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// UserStore is the directory of users.
type UserStore interface {
	// CreateUser persists a new user. ID and CreatedAt are assigned when empty.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUser retrieves a user by ID. Returns ErrNotFound if missing.
	GetUser(ctx context.Context, userID string) (*models.User, error)

	// UpdateUser overwrites a user's name and email. Returns ErrNotFound if missing.
	UpdateUser(ctx context.Context, user *models.User) error

	// GetUsersByIDs returns the users that exist among ids, keyed by ID.
	// Unknown ids are omitted from the result.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// GroupStore manages groups and their membership.
type GroupStore interface {
	// CreateGroup persists a new group together with its initial members.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group with its members sorted by user ID.
	// Returns ErrNotFound if missing.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// UpdateGroup overwrites a group's name and description. Membership is
	// unchanged. Returns ErrNotFound if missing.
	UpdateGroup(ctx context.Context, group *models.Group) error

	// ListGroupsByUser returns every group the user belongs to, with members,
	// ordered by creation time, then ID.
	ListGroupsByUser(ctx context.Context, userID string) ([]*models.Group, error)

	// AddGroupMembers adds users to a group. Existing members are ignored.
	AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error

	// RemoveGroupMember removes one member. Returns ErrNotFound if the user
	// is not a member.
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
}

// ExpenseStore manages expenses. Loaded shares carry models.ByID references.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, expense *models.Expense) error
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)
	UpdateExpense(ctx context.Context, expense *models.Expense) error
	DeleteExpense(ctx context.Context, expenseID string) error

	// ListExpensesByGroup returns a group's expenses ordered by creation time, then ID.
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)
}

// SettlementStore is the append-only history of committed settlement transfers.
type SettlementStore interface {
	// AppendSettlements writes every settlement in one transaction:
	// either all of them are persisted or none are.
	AppendSettlements(ctx context.Context, settlements []*models.Settlement) error

	// ListSettlementsByGroup returns a group's settlements in commit order
	// (created_at, batch, position).
	ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error)
}

// Store aggregates every port. Backends (memory, SQLite, PostgreSQL) can be
// swapped without changing the service layer.
type Store interface {
	UserStore
	GroupStore
	ExpenseStore
	SettlementStore

	// Close releases any resources held by the store.
	Close() error
}

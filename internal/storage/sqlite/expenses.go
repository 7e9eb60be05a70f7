package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

const (
	rolePayer       = "payer"
	roleParticipant = "participant"
)

// CreateExpense persists a new expense with its payer and participant shares.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if expense.CreatedAt == 0 {
		expense.CreatedAt = now
	}
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = expense.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, description, category, amount, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.Description, expense.Category,
		expense.Amount.Int64(), expense.CreatedAt, expense.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	if err := insertShares(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func insertShares(ctx context.Context, tx *sql.Tx, expense *models.Expense) error {
	insert := func(role string, shares []models.Share) error {
		for i, share := range shares {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO expense_shares (expense_id, role, position, user_id, amount) VALUES (?, ?, ?, ?, ?)",
				expense.ID, role, i, share.User.ID(), share.Amount.Int64(),
			)
			if err != nil {
				return fmt.Errorf("failed to insert %s share: %w", role, err)
			}
		}
		return nil
	}
	if err := insert(rolePayer, expense.Payers); err != nil {
		return err
	}
	return insert(roleParticipant, expense.Participants)
}

// GetExpense retrieves an expense by ID, including its shares.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense := &models.Expense{}
	var amount int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, description, category, amount, created_at, updated_at
		 FROM expenses WHERE id = ?`,
		expenseID,
	).Scan(&expense.ID, &expense.GroupID, &expense.Description, &expense.Category,
		&amount, &expense.CreatedAt, &expense.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	expense.Amount = money.New(amount)

	byID := map[string]*models.Expense{expense.ID: expense}
	if err := s.loadShares(ctx, "SELECT expense_id, role, user_id, amount FROM expense_shares WHERE expense_id = ? ORDER BY role, position", byID, expenseID); err != nil {
		return nil, err
	}

	return expense, nil
}

// UpdateExpense replaces an expense's fields and shares.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses SET description = ?, category = ?, amount = ?, updated_at = ?
		 WHERE id = ? AND group_id = ?`,
		expense.Description, expense.Category, expense.Amount.Int64(), expense.UpdatedAt,
		expense.ID, expense.GroupID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	} else if n == 0 {
		return fmt.Errorf("expense %s: %w", expense.ID, storage.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM expense_shares WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to delete expense shares: %w", err)
	}
	if err := insertShares(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteExpense removes an expense and its shares.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}

	return nil
}

// ListExpensesByGroup retrieves all expenses of a group with their shares.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, description, category, amount, created_at, updated_at
		 FROM expenses WHERE group_id = ? ORDER BY created_at, id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses by group: %w", err)
	}
	defer rows.Close()

	var expenses []*models.Expense
	byID := make(map[string]*models.Expense)
	for rows.Next() {
		expense := &models.Expense{}
		var amount int64
		if err := rows.Scan(&expense.ID, &expense.GroupID, &expense.Description, &expense.Category,
			&amount, &expense.CreatedAt, &expense.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expense.Amount = money.New(amount)
		expenses = append(expenses, expense)
		byID[expense.ID] = expense
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	rows.Close()

	if len(expenses) == 0 {
		return expenses, nil
	}

	err = s.loadShares(ctx,
		`SELECT es.expense_id, es.role, es.user_id, es.amount
		 FROM expense_shares es JOIN expenses e ON e.id = es.expense_id
		 WHERE e.group_id = ? ORDER BY es.expense_id, es.role, es.position`,
		byID, groupID)
	if err != nil {
		return nil, err
	}

	return expenses, nil
}

// loadShares attaches share rows (expense_id, role, user_id, amount) to the
// expenses in byID. Rows must be ordered by position within each role.
func (s *SQLiteStore) loadShares(ctx context.Context, query string, byID map[string]*models.Expense, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to get expense shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var expenseID, role, userID string
		var amount int64
		if err := rows.Scan(&expenseID, &role, &userID, &amount); err != nil {
			return fmt.Errorf("failed to scan expense share: %w", err)
		}
		expense, ok := byID[expenseID]
		if !ok {
			continue
		}
		share := models.Share{User: models.ByID[models.User](userID), Amount: money.New(amount)}
		switch role {
		case rolePayer:
			expense.Payers = append(expense.Payers, share)
		case roleParticipant:
			expense.Participants = append(expense.Participants, share)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate expense shares: %w", err)
	}

	return nil
}

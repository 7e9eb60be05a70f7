// Package postgres provides a PostgreSQL implementation of the storage.Store interface using pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

//go:embed schema.sql
var schema string

var _ storage.Store = (*Store)(nil)

// Store is a PostgreSQL storage.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, verifies the connection and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := NewStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing pool. The schema must already be applied.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().Unix()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Name, user.Email, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = $1`, userID,
	).Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE users SET name = $1, email = $2 WHERE id = $3`,
		user.Name, user.Email, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", user.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get users by IDs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO groups (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
			group.ID, group.Name, group.Description, group.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}
		return insertMembers(ctx, tx, group.ID, group.Members, group.CreatedAt)
	})
}

func insertMembers(ctx context.Context, tx pgx.Tx, groupID string, userIDs []string, joinedAt int64) error {
	for _, userID := range userIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO group_members (group_id, user_id, joined_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			groupID, userID, joinedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group member %s: %w", userID, err)
		}
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, created_at FROM groups WHERE id = $1`, groupID,
	).Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY user_id`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan group members: %w", err)
	}
	group.Members = members
	return group, nil
}

func (s *Store) UpdateGroup(ctx context.Context, group *models.Group) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE groups SET name = $1, description = $2 WHERE id = $3`,
		group.Name, group.Description, group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("group %s: %w", group.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListGroupsByUser(ctx context.Context, userID string) ([]*models.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT g.id FROM groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1
		ORDER BY g.created_at, g.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan group ids: %w", err)
	}

	groups := make([]*models.Group, 0, len(ids))
	for _, id := range ids {
		group, err := s.GetGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func (s *Store) AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var exists int
		err := tx.QueryRow(ctx, `SELECT 1 FROM groups WHERE id = $1`, groupID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check group existence: %w", err)
		}
		return insertMembers(ctx, tx, groupID, userIDs, time.Now().Unix())
	})
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	ct, err := s.pool.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("member %s of group %s: %w", userID, groupID, storage.ErrNotFound)
	}
	return nil
}

const (
	rolePayer       = "payer"
	roleParticipant = "participant"
)

func (s *Store) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = expense.CreatedAt
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO expenses (id, group_id, description, category, amount, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			expense.ID, expense.GroupID, expense.Description, expense.Category,
			expense.Amount.Int64(), expense.CreatedAt, expense.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}
		return insertShares(ctx, tx, expense)
	})
}

func insertShares(ctx context.Context, tx pgx.Tx, expense *models.Expense) error {
	batch := &pgx.Batch{}
	queue := func(role string, shares []models.Share) {
		for i, share := range shares {
			batch.Queue(
				`INSERT INTO expense_shares (expense_id, role, position, user_id, amount) VALUES ($1, $2, $3, $4, $5)`,
				expense.ID, role, i, share.User.ID(), share.Amount.Int64(),
			)
		}
	}
	queue(rolePayer, expense.Payers)
	queue(roleParticipant, expense.Participants)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert expense shares: %w", err)
	}
	return nil
}

func (s *Store) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense := &models.Expense{}
	var amount int64
	err := s.pool.QueryRow(ctx,
		`SELECT id, group_id, description, category, amount, created_at, updated_at
		 FROM expenses WHERE id = $1`, expenseID,
	).Scan(&expense.ID, &expense.GroupID, &expense.Description, &expense.Category,
		&amount, &expense.CreatedAt, &expense.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	expense.Amount = money.New(amount)

	err = s.loadShares(ctx, map[string]*models.Expense{expense.ID: expense},
		`SELECT expense_id, role, user_id, amount FROM expense_shares
		 WHERE expense_id = $1 ORDER BY role, position`, expenseID)
	if err != nil {
		return nil, err
	}
	return expense, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now().Unix()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx,
			`UPDATE expenses SET description = $1, category = $2, amount = $3, updated_at = $4
			 WHERE id = $5 AND group_id = $6`,
			expense.Description, expense.Category, expense.Amount.Int64(), expense.UpdatedAt,
			expense.ID, expense.GroupID,
		)
		if err != nil {
			return fmt.Errorf("failed to update expense: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("expense %s: %w", expense.ID, storage.ErrNotFound)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM expense_shares WHERE expense_id = $1`, expense.ID); err != nil {
			return fmt.Errorf("failed to delete expense shares: %w", err)
		}
		return insertShares(ctx, tx, expense)
	})
}

func (s *Store) DeleteExpense(ctx context.Context, expenseID string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, group_id, description, category, amount, created_at, updated_at
		 FROM expenses WHERE group_id = $1 ORDER BY created_at, id`, groupID,
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
	err = s.loadShares(ctx, byID,
		`SELECT es.expense_id, es.role, es.user_id, es.amount
		 FROM expense_shares es JOIN expenses e ON e.id = es.expense_id
		 WHERE e.group_id = $1 ORDER BY es.expense_id, es.role, es.position`, groupID)
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) loadShares(ctx context.Context, byID map[string]*models.Expense, query string, args ...any) error {
	rows, err := s.pool.Query(ctx, query, args...)
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

// AppendSettlements writes the batch inside one transaction.
func (s *Store) AppendSettlements(ctx context.Context, settlements []*models.Settlement) error {
	if len(settlements) == 0 {
		return nil
	}
	now := time.Now().Unix()
	for _, st := range settlements {
		if st.ID == "" {
			st.ID = uuid.New().String()
		}
		if st.CreatedAt == 0 {
			st.CreatedAt = now
		}
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows := make([][]any, len(settlements))
		for i, st := range settlements {
			var note *string
			if st.Note != "" {
				note = &st.Note
			}
			rows[i] = []any{
				st.ID, st.BatchID, st.GroupID, st.FromUserID, st.ToUserID,
				st.Amount.Int64(), st.Position, st.CreatedAt, st.CreatedBy, note,
			}
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"settlements"},
			[]string{"id", "batch_id", "group_id", "from_user_id", "to_user_id", "amount", "position", "created_at", "created_by", "note"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to insert settlements: %w", err)
		}
		return nil
	})
}

func (s *Store) ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, batch_id, group_id, from_user_id, to_user_id, amount, position, created_at, created_by, note
		 FROM settlements WHERE group_id = $1 ORDER BY created_at, batch_id, position`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements by group: %w", err)
	}
	defer rows.Close()

	var settlements []*models.Settlement
	for rows.Next() {
		st := &models.Settlement{}
		var amount int64
		var note *string
		if err := rows.Scan(&st.ID, &st.BatchID, &st.GroupID, &st.FromUserID, &st.ToUserID,
			&amount, &st.Position, &st.CreatedAt, &st.CreatedBy, &note); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		st.Amount = money.New(amount)
		if note != nil {
			st.Note = *note
		}
		settlements = append(settlements, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return settlements, nil
}

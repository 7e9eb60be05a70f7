package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
)

// AppendSettlements persists a batch of settlements in a single transaction.
func (s *SQLiteStore) AppendSettlements(ctx context.Context, settlements []*models.Settlement) error {
	if len(settlements) == 0 {
		return nil
	}

	now := time.Now().Unix()
	for _, settlement := range settlements {
		if settlement.ID == "" {
			settlement.ID = uuid.New().String()
		}
		if settlement.CreatedAt == 0 {
			settlement.CreatedAt = now
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO settlements (id, batch_id, group_id, from_user_id, to_user_id, amount, position, created_at, created_by, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare settlement insert: %w", err)
	}
	defer stmt.Close()

	for _, settlement := range settlements {
		_, err := stmt.ExecContext(ctx,
			settlement.ID, settlement.BatchID, settlement.GroupID, settlement.FromUserID, settlement.ToUserID,
			settlement.Amount.Int64(), settlement.Position, settlement.CreatedAt, settlement.CreatedBy,
			nullString(settlement.Note),
		)
		if err != nil {
			return fmt.Errorf("failed to insert settlement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListSettlementsByGroup retrieves all settlements for a group in commit order.
func (s *SQLiteStore) ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, group_id, from_user_id, to_user_id, amount, position, created_at, created_by, note
		 FROM settlements WHERE group_id = ? ORDER BY created_at, batch_id, position`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements by group: %w", err)
	}
	defer rows.Close()

	var settlements []*models.Settlement
	for rows.Next() {
		settlement := &models.Settlement{}
		var amount int64
		var note sql.NullString

		if err := rows.Scan(&settlement.ID, &settlement.BatchID, &settlement.GroupID, &settlement.FromUserID,
			&settlement.ToUserID, &amount, &settlement.Position, &settlement.CreatedAt, &settlement.CreatedBy,
			&note); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}

		settlement.Amount = money.New(amount)
		if note.Valid {
			settlement.Note = note.String
		}

		settlements = append(settlements, settlement)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}

	return settlements, nil
}

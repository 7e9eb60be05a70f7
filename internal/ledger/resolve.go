package ledger

import (
	"context"
	"fmt"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/models"
)

// referencedUserIDs collects every user id that members, expense shares and
// settlements point at, without duplicates.
func referencedUserIDs(members []string, expenses []*models.Expense, settlements []*models.Settlement) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, m := range members {
		add(m)
	}
	for _, e := range expenses {
		for _, s := range e.Payers {
			add(s.User.ID())
		}
		for _, s := range e.Participants {
			add(s.User.ID())
		}
	}
	for _, s := range settlements {
		add(s.FromUserID)
		add(s.ToUserID)
	}
	return ids
}

// resolveExpense replaces every ByID share reference of e with a Resolved one.
// Already resolved references are kept. An unknown user fails with a
// *calculator.ValidationError naming the expense.
func resolveExpense(users map[string]*models.User, e *models.Expense) error {
	resolve := func(shares []models.Share) error {
		for i, s := range shares {
			if s.User.IsResolved() {
				continue
			}
			u, ok := users[s.User.ID()]
			if !ok {
				return &calculator.ValidationError{
					Kind:   "expense",
					ID:     e.ID,
					Reason: fmt.Sprintf("unknown user %q", s.User.ID()),
				}
			}
			shares[i].User = models.Resolved(u.ID, *u)
		}
		return nil
	}
	if err := resolve(e.Payers); err != nil {
		return err
	}
	return resolve(e.Participants)
}

// ResolveExpense loads the users e references and attaches them to its shares.
func (s *Service) ResolveExpense(ctx context.Context, e *models.Expense) error {
	users, err := s.users.GetUsersByIDs(ctx, referencedUserIDs(nil, []*models.Expense{e}, nil))
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	return resolveExpense(users, e)
}

// ValidateExpense resolves e's references and checks it against the group's
// membership with the same rules balance computation applies.
func (s *Service) ValidateExpense(ctx context.Context, group *models.Group, e *models.Expense) error {
	if err := s.ResolveExpense(ctx, e); err != nil {
		return err
	}
	return calculator.ValidateExpense(group.Members, toBalanceExpense(e))
}

func toBalanceExpense(e *models.Expense) calculator.ExpenseForBalance {
	convert := func(shares []models.Share) []calculator.Share {
		out := make([]calculator.Share, len(shares))
		for i, s := range shares {
			out[i] = calculator.Share{UserID: s.User.ID(), Amount: s.Amount}
		}
		return out
	}
	return calculator.ExpenseForBalance{
		ID:           e.ID,
		Amount:       e.Amount,
		Payers:       convert(e.Payers),
		Participants: convert(e.Participants),
	}
}

func toBalanceSettlement(s *models.Settlement) calculator.SettlementForBalance {
	return calculator.SettlementForBalance{
		ID:     s.ID,
		From:   s.FromUserID,
		To:     s.ToUserID,
		Amount: s.Amount,
	}
}

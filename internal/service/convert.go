package service

import (
	"fmt"
	"strings"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	pb "github.com/mmynk/settleup/pkg/api"
)

// parseAmount reads an amount given as minor units or as a decimal string.
// Minor units win when both are set.
func parseAmount(minor int64, decimal string) (money.Money, error) {
	if minor != 0 || decimal == "" {
		return money.New(minor), nil
	}
	return money.ParseDecimal(decimal)
}

func parseShares(role string, inputs []pb.Share) ([]models.Share, error) {
	shares := make([]models.Share, len(inputs))
	for i, in := range inputs {
		if in.UserID == "" {
			return nil, invalidArgument("%s %d: user_id required", role, i+1)
		}
		amount, err := parseAmount(in.AmountMinor, in.Amount)
		if err != nil {
			return nil, invalidArgument("%s %s: %v", role, in.UserID, err)
		}
		shares[i] = models.Share{User: models.ByID[models.User](in.UserID), Amount: amount}
	}
	return shares, nil
}

func equalShares(amount money.Money, userIDs []string) ([]models.Share, error) {
	split, err := calculator.EqualSplit(amount, userIDs)
	if err != nil {
		return nil, err
	}
	shares := make([]models.Share, len(split))
	for i, s := range split {
		shares[i] = models.Share{User: models.ByID[models.User](s.UserID), Amount: s.Amount}
	}
	return shares, nil
}

// expenseFromInput builds an expense from explicit shares, or from
// paid_by/paid_for lists that split the amount equally on each side.
func expenseFromInput(in pb.ExpenseInput) (*models.Expense, error) {
	amount, err := parseAmount(in.AmountMinor, in.Amount)
	if err != nil {
		return nil, invalidArgument("amount: %v", err)
	}

	e := &models.Expense{
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		Amount:      amount,
	}

	explicit := len(in.Payers) > 0 || len(in.Participants) > 0
	equal := len(in.PaidBy) > 0 || len(in.PaidFor) > 0
	switch {
	case explicit && equal:
		return nil, invalidArgument("use either payers/participants or paid_by/paid_for, not both")
	case explicit:
		if e.Payers, err = parseShares("payer", in.Payers); err != nil {
			return nil, err
		}
		if e.Participants, err = parseShares("participant", in.Participants); err != nil {
			return nil, err
		}
	case equal:
		if amount.Sign() <= 0 {
			return nil, invalidArgument("amount must be positive, got %s", amount)
		}
		if e.Payers, err = equalShares(amount, in.PaidBy); err != nil {
			return nil, invalidArgument("paid_by: %v", err)
		}
		if e.Participants, err = equalShares(amount, in.PaidFor); err != nil {
			return nil, invalidArgument("paid_for: %v", err)
		}
	default:
		return nil, invalidArgument("expense needs payers and participants")
	}
	return e, nil
}

// defaultDescription labels an expense that was created without one.
func defaultDescription(e *models.Expense) string {
	names := make([]string, 0, len(e.Participants))
	for _, s := range e.Participants {
		name := s.User.ID()
		if u, ok := s.User.Value(); ok && u.Name != "" {
			name = u.Name
		}
		names = append(names, name)
	}
	if len(names) <= 3 {
		return fmt.Sprintf("Split with %s", strings.Join(names, ", "))
	}
	return fmt.Sprintf("Split with %s and %d others",
		strings.Join(names[:2], ", "),
		len(names)-2,
	)
}

func toPBUser(u *models.User) pb.User {
	return pb.User{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func toPBGroup(g *models.Group) pb.Group {
	members := g.Members
	if members == nil {
		members = []string{}
	}
	return pb.Group{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Members:     members,
		CreatedAt:   g.CreatedAt,
	}
}

func toPBShares(shares []models.Share, names map[string]string) []pb.Share {
	out := make([]pb.Share, len(shares))
	for i, s := range shares {
		name := names[s.User.ID()]
		if u, ok := s.User.Value(); ok {
			name = u.Name
		}
		out[i] = pb.Share{
			UserID:      s.User.ID(),
			UserName:    name,
			AmountMinor: s.Amount.Int64(),
			Amount:      s.Amount.String(),
		}
	}
	return out
}

func toPBExpense(e *models.Expense, names map[string]string) pb.Expense {
	return pb.Expense{
		ID:           e.ID,
		GroupID:      e.GroupID,
		Description:  e.Description,
		Category:     e.Category,
		AmountMinor:  e.Amount.Int64(),
		Amount:       e.Amount.String(),
		Payers:       toPBShares(e.Payers, names),
		Participants: toPBShares(e.Participants, names),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// ToPBSettlements converts committed settlements to their wire form.
func ToPBSettlements(settlements []*models.Settlement) []pb.Settlement {
	out := make([]pb.Settlement, len(settlements))
	for i, s := range settlements {
		out[i] = pb.Settlement{
			ID:          s.ID,
			BatchID:     s.BatchID,
			GroupID:     s.GroupID,
			FromUserID:  s.FromUserID,
			ToUserID:    s.ToUserID,
			AmountMinor: s.Amount.Int64(),
			Amount:      s.Amount.String(),
			Position:    s.Position,
			CreatedAt:   s.CreatedAt,
			CreatedBy:   s.CreatedBy,
			Note:        s.Note,
		}
	}
	return out
}

// ToPBBalances converts ledger balances to their wire form.
func ToPBBalances(balances []ledger.MemberBalance) []pb.MemberBalance {
	out := make([]pb.MemberBalance, len(balances))
	for i, b := range balances {
		out[i] = pb.MemberBalance{
			UserID:         b.UserID,
			Name:           b.Name,
			NetMinor:       b.Net.Int64(),
			Net:            b.Net.String(),
			TotalPaidMinor: b.TotalPaid.Int64(),
			TotalOwedMinor: b.TotalOwed.Int64(),
		}
	}
	return out
}

// ToPBTransfers converts a ledger plan to its wire form.
func ToPBTransfers(plan []ledger.PlannedTransfer) []pb.Transfer {
	out := make([]pb.Transfer, len(plan))
	for i, t := range plan {
		out[i] = pb.Transfer{
			FromUserID:  t.From.ID,
			FromName:    t.From.Name,
			ToUserID:    t.To.ID,
			ToName:      t.To.Name,
			AmountMinor: t.Amount.Int64(),
			Amount:      t.Amount.String(),
		}
	}
	return out
}

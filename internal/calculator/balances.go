package calculator

import (
	"fmt"

	"github.com/mmynk/settleup/internal/money"
)

// Share is one user's portion of an expense, by resolved user id.
type Share struct {
	UserID string
	Amount money.Money
}

// ExpenseForBalance represents an expense with the minimal information needed for balance calculations.
type ExpenseForBalance struct {
	ID           string
	Amount       money.Money
	Payers       []Share
	Participants []Share
}

// SettlementForBalance represents a recorded settlement with the minimal information needed for balance calculations.
type SettlementForBalance struct {
	ID     string
	From   string // Who paid (debtor settling up)
	To     string // Who received (creditor being paid)
	Amount money.Money
}

// Balance is the net position of one group member.
type Balance struct {
	UserID    string
	Net       money.Money // Positive = owed money, Negative = owes money
	TotalPaid money.Money // Paid for expenses plus settlements sent
	TotalOwed money.Money // Owed for expenses plus settlements received
}

// ValidateExpense checks an expense against the group membership.
//
// Rules: amount > 0; payers and participants non-empty; no negative share;
// every referenced user is a member; payer amounts and participant shares
// each sum to the amount.
func ValidateExpense(members []string, e ExpenseForBalance) error {
	return validateExpense(memberSet(members), e)
}

func memberSet(members []string) map[string]struct{} {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set
}

func validateExpense(members map[string]struct{}, e ExpenseForBalance) error {
	if e.Amount <= 0 {
		return invalidExpense(e.ID, "amount must be positive, got %d", e.Amount.Int64())
	}
	if len(e.Payers) == 0 {
		return invalidExpense(e.ID, "must have at least one payer")
	}
	if len(e.Participants) == 0 {
		return invalidExpense(e.ID, "must have at least one participant")
	}
	if err := validateShares(members, e, "payer", e.Payers); err != nil {
		return err
	}
	return validateShares(members, e, "participant", e.Participants)
}

func validateShares(members map[string]struct{}, e ExpenseForBalance, role string, shares []Share) error {
	total := money.Zero
	for _, s := range shares {
		if _, ok := members[s.UserID]; !ok {
			return invalidExpense(e.ID, "%s %q is not a group member", role, s.UserID)
		}
		if s.Amount < 0 {
			return invalidExpense(e.ID, "%s %q has negative amount %d", role, s.UserID, s.Amount.Int64())
		}
		var err error
		if total, err = total.Add(s.Amount); err != nil {
			return fmt.Errorf("expense %q %s sum: %w", e.ID, role, err)
		}
	}
	if total != e.Amount {
		return invalidExpense(e.ID, "%s amounts sum to %d, want %d", role, total.Int64(), e.Amount.Int64())
	}
	return nil
}

func validateSettlement(members map[string]struct{}, s SettlementForBalance) error {
	if s.Amount <= 0 {
		return invalidSettlement(s.ID, "amount must be positive, got %d", s.Amount.Int64())
	}
	if s.From == s.To {
		return invalidSettlement(s.ID, "payer and receiver are both %q", s.From)
	}
	if _, ok := members[s.From]; !ok {
		return invalidSettlement(s.ID, "payer %q is not a group member", s.From)
	}
	if _, ok := members[s.To]; !ok {
		return invalidSettlement(s.ID, "receiver %q is not a group member", s.To)
	}
	return nil
}

// ComputeBalances folds a group's expenses and recorded settlements into one
// net balance per member.
//
// Algorithm:
//   - every member starts at 0
//   - for each expense: each payer is credited what they paid, each participant is debited their share
//   - for each settlement: the payer is credited, the receiver is debited
//
// Any invalid record fails the whole computation with a *ValidationError and
// no partial result. Accumulation outside the int64 range fails with a wrapped
// *money.ArithmeticOverflowError. The sum of all returned Net values is zero.
func ComputeBalances(members []string, expenses []ExpenseForBalance, settlements ...SettlementForBalance) (map[string]Balance, error) {
	set := memberSet(members)

	balances := make(map[string]*Balance, len(set))
	for m := range set {
		balances[m] = &Balance{UserID: m}
	}

	for _, e := range expenses {
		if err := validateExpense(set, e); err != nil {
			return nil, err
		}
		for _, p := range e.Payers {
			if err := balances[p.UserID].credit(p.Amount); err != nil {
				return nil, fmt.Errorf("expense %q: %w", e.ID, err)
			}
		}
		for _, p := range e.Participants {
			if err := balances[p.UserID].debit(p.Amount); err != nil {
				return nil, fmt.Errorf("expense %q: %w", e.ID, err)
			}
		}
	}

	for _, s := range settlements {
		if err := validateSettlement(set, s); err != nil {
			return nil, err
		}
		if err := balances[s.From].credit(s.Amount); err != nil {
			return nil, fmt.Errorf("settlement %q: %w", s.ID, err)
		}
		if err := balances[s.To].debit(s.Amount); err != nil {
			return nil, fmt.Errorf("settlement %q: %w", s.ID, err)
		}
	}

	out := make(map[string]Balance, len(balances))
	for id, b := range balances {
		out[id] = *b
	}
	return out, nil
}

func (b *Balance) credit(amount money.Money) error {
	paid, err := b.TotalPaid.Add(amount)
	if err != nil {
		return err
	}
	net, err := b.Net.Add(amount)
	if err != nil {
		return err
	}
	b.TotalPaid, b.Net = paid, net
	return nil
}

func (b *Balance) debit(amount money.Money) error {
	owed, err := b.TotalOwed.Add(amount)
	if err != nil {
		return err
	}
	net, err := b.Net.Sub(amount)
	if err != nil {
		return err
	}
	b.TotalOwed, b.Net = owed, net
	return nil
}

package ledger

import (
	"slices"

	"github.com/mmynk/settleup/internal/money"
)

// MemberBalance is one member's net position with display data attached.
type MemberBalance struct {
	UserID    string      `json:"userId"`
	Name      string      `json:"name"`
	Net       money.Money `json:"net"` // Positive = owed money, Negative = owes money
	TotalPaid money.Money `json:"totalPaid"`
	TotalOwed money.Money `json:"totalOwed"`
}

// UserRef identifies a user in a planned transfer.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlannedTransfer is one step of a settlement plan.
type PlannedTransfer struct {
	From   UserRef     `json:"from"`
	To     UserRef     `json:"to"`
	Amount money.Money `json:"amount"`
}

// Snapshot is everything derived from one version of a group's ledger.
// It is the cached unit.
type Snapshot struct {
	GroupID     string            `json:"groupId"`
	Fingerprint string            `json:"fingerprint"`
	Balances    []MemberBalance   `json:"balances"` // sorted by user ID
	Plan        []PlannedTransfer `json:"plan"`
}

// clone copies the slices so a caller can never modify a cached entry.
func (s Snapshot) clone() Snapshot {
	s.Balances = slices.Clone(s.Balances)
	s.Plan = slices.Clone(s.Plan)
	return s
}

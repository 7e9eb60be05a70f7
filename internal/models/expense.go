package models

import "github.com/mmynk/settleup/internal/money"

// Expense is an amount paid by one or more payers on behalf of one or more participants.
//
// The payer amounts and the participant shares each sum to Amount.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the group the expense belongs to.
	GroupID string

	// Description is the human-readable label (e.g., "Groceries").
	Description string

	// Category is an optional classification.
	Category string

	// Amount is the positive total in minor units.
	Amount money.Money

	// Payers are the users who paid and how much each paid.
	Payers []Share

	// Participants are the users the expense was for and how much each owes.
	Participants []Share

	// CreatedAt is the Unix timestamp when the expense was created.
	CreatedAt int64

	// UpdatedAt is the Unix timestamp of the last modification.
	UpdatedAt int64
}

// Share is one user's portion of an expense.
type Share struct {
	User   Reference[User]
	Amount money.Money
}

// UserIDs returns the referenced user ids of shares, in order.
func UserIDs(shares []Share) []string {
	ids := make([]string, len(shares))
	for i, s := range shares {
		ids[i] = s.User.ID()
	}
	return ids
}

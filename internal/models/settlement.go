package models

import "github.com/mmynk/settleup/internal/money"

// Settlement is one transfer of a committed settlement plan.
// All transfers committed together share a BatchID and are written atomically.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	// BatchID groups the transfers of one settle-up commit.
	BatchID string

	// GroupID is the group this settlement belongs to.
	GroupID string

	// FromUserID is the user who pays (debtor settling up).
	FromUserID string

	// ToUserID is the user who receives payment (creditor being paid).
	ToUserID string

	// Amount is the positive payment amount.
	Amount money.Money

	// Position is the index of this transfer within its plan.
	Position int

	// CreatedAt is the Unix timestamp when the settlement was recorded.
	CreatedAt int64

	// CreatedBy is the user ID who recorded this settlement.
	CreatedBy string

	// Note is an optional description for the settlement.
	Note string
}

package calculator

import (
	"fmt"
	"slices"

	"github.com/mmynk/settleup/internal/money"
)

// EqualSplit divides amount among userIDs.
//
// Ids are deduplicated and sorted ascending; the remainder minor units go to
// the first ids in that order, so the same input always yields the same shares.
func EqualSplit(amount money.Money, userIDs []string) ([]Share, error) {
	ids := slices.Clone(userIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("must have at least one participant")
	}
	if ids[0] == "" {
		return nil, fmt.Errorf("participant id must not be empty")
	}

	amounts, err := amount.Split(len(ids))
	if err != nil {
		return nil, err
	}

	shares := make([]Share, len(ids))
	for i, id := range ids {
		shares[i] = Share{UserID: id, Amount: amounts[i]}
	}
	return shares, nil
}

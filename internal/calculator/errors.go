package calculator

import (
	"errors"
	"fmt"

	"github.com/mmynk/settleup/internal/money"
)

// ErrPlanDoesNotSettle is returned by VerifyPlan when applying a plan leaves a non-zero balance.
var ErrPlanDoesNotSettle = errors.New("settlement plan does not zero all balances")

// ValidationError reports a malformed expense or recorded settlement.
// A single ValidationError fails the whole group computation.
type ValidationError struct {
	// Kind is "expense" or "settlement".
	Kind string
	// ID identifies the offending record.
	ID string
	// Reason describes the violated rule.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.ID, e.Reason)
}

func invalidExpense(id, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: "expense", ID: id, Reason: fmt.Sprintf(format, args...)}
}

func invalidSettlement(id, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: "settlement", ID: id, Reason: fmt.Sprintf(format, args...)}
}

// InconsistentBalanceError reports planner input whose balances do not sum to zero.
// It signals upstream corruption and is never corrected silently.
type InconsistentBalanceError struct {
	Sum money.Money
}

func (e *InconsistentBalanceError) Error() string {
	return fmt.Sprintf("inconsistent balances: sum is %d minor units, want 0", e.Sum.Int64())
}

package calculator

import (
	"container/heap"
	"fmt"
	"slices"

	"github.com/mmynk/settleup/internal/money"
)

// Transfer is one payment of a settlement plan.
type Transfer struct {
	From   string // Person who pays (debtor)
	To     string // Person who is paid (creditor)
	Amount money.Money
}

// Strategy selects the settlement planner.
type Strategy string

const (
	// StrategyGreedy matches the largest creditor with the largest debtor.
	StrategyGreedy Strategy = "greedy"
	// StrategyExact finds the minimum transfer count for small groups.
	StrategyExact Strategy = "exact"
)

// Plan runs the planner selected by strategy.
func Plan(strategy Strategy, balances map[string]Balance) ([]Transfer, error) {
	switch strategy {
	case StrategyExact:
		return PlanSettlementExact(balances, DefaultExactLimit)
	case StrategyGreedy, "":
		return PlanSettlement(balances)
	default:
		return nil, fmt.Errorf("unknown settlement strategy %q", strategy)
	}
}

// party is one side of a pending transfer; amount is always a positive magnitude.
type party struct {
	userID string
	amount money.Money
}

// partyHeap orders parties by amount descending, then user id ascending.
type partyHeap []party

func (h partyHeap) Len() int { return len(h) }
func (h partyHeap) Less(i, j int) bool {
	if h[i].amount != h[j].amount {
		return h[i].amount > h[j].amount
	}
	return h[i].userID < h[j].userID
}
func (h partyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *partyHeap) Push(x any)   { *h = append(*h, x.(party)) }
func (h *partyHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	*h = old[:n-1]
	return p
}

// sortedIDs returns the map keys in ascending order.
func sortedIDs(balances map[string]Balance) []string {
	ids := make([]string, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// checkConservation fails unless the balances sum to exactly zero.
func checkConservation(balances map[string]Balance, ids []string) error {
	total := money.Zero
	for _, id := range ids {
		var err error
		if total, err = total.Add(balances[id].Net); err != nil {
			return fmt.Errorf("failed to sum balances: %w", err)
		}
	}
	if !total.IsZero() {
		return &InconsistentBalanceError{Sum: total}
	}
	return nil
}

// PlanSettlement converts net balances into a list of transfers that zeroes every balance.
//
// Minimum-transfer settlement is NP-hard in general; this uses the greedy
// heuristic: repeatedly match the largest creditor with the largest debtor
// and transfer the smaller of the two magnitudes. At least one side reaches
// zero per step, so n non-zero balances settle in at most n-1 transfers.
// The result is a heuristic bound, not a proven minimum (see PlanSettlementExact).
//
// Ties are broken by ascending user id, so identical input always yields an
// identical plan. Balances that do not sum to zero fail with
// *InconsistentBalanceError.
func PlanSettlement(balances map[string]Balance) ([]Transfer, error) {
	ids := sortedIDs(balances)
	if err := checkConservation(balances, ids); err != nil {
		return nil, err
	}

	creditors := &partyHeap{}
	debtors := &partyHeap{}
	for _, id := range ids {
		net := balances[id].Net
		switch net.Sign() {
		case 1:
			*creditors = append(*creditors, party{userID: id, amount: net})
		case -1:
			owed, err := net.Neg()
			if err != nil {
				return nil, fmt.Errorf("balance of %q: %w", id, err)
			}
			*debtors = append(*debtors, party{userID: id, amount: owed})
		}
	}
	heap.Init(creditors)
	heap.Init(debtors)

	var plan []Transfer
	for creditors.Len() > 0 && debtors.Len() > 0 {
		c := heap.Pop(creditors).(party)
		d := heap.Pop(debtors).(party)

		t := money.Min(c.amount, d.amount)
		plan = append(plan, Transfer{From: d.userID, To: c.userID, Amount: t})

		// Both magnitudes are >= t, so these cannot overflow.
		c.amount -= t
		d.amount -= t
		if c.amount > 0 {
			heap.Push(creditors, c)
		}
		if d.amount > 0 {
			heap.Push(debtors, d)
		}
	}

	if creditors.Len() > 0 || debtors.Len() > 0 {
		// Unreachable for zero-sum input.
		return nil, &InconsistentBalanceError{Sum: leftover(*creditors, *debtors)}
	}
	return plan, nil
}

func leftover(creditors, debtors partyHeap) money.Money {
	var sum money.Money
	for _, c := range creditors {
		sum += c.amount
	}
	for _, d := range debtors {
		sum -= d.amount
	}
	return sum
}

// ApplyTransfers returns the net balances left after applying plan in order.
func ApplyTransfers(balances map[string]Balance, plan []Transfer) (map[string]money.Money, error) {
	nets := make(map[string]money.Money, len(balances))
	for id, b := range balances {
		nets[id] = b.Net
	}
	for i, t := range plan {
		if _, ok := nets[t.From]; !ok {
			return nil, fmt.Errorf("transfer %d: unknown payer %q", i, t.From)
		}
		if _, ok := nets[t.To]; !ok {
			return nil, fmt.Errorf("transfer %d: unknown receiver %q", i, t.To)
		}
		from, err := nets[t.From].Add(t.Amount)
		if err != nil {
			return nil, fmt.Errorf("transfer %d: %w", i, err)
		}
		nets[t.From] = from
		to, err := nets[t.To].Sub(t.Amount)
		if err != nil {
			return nil, fmt.Errorf("transfer %d: %w", i, err)
		}
		nets[t.To] = to
	}
	return nets, nil
}

// VerifyPlan checks that every transfer is positive and that applying the
// plan leaves every balance at exactly zero.
func VerifyPlan(balances map[string]Balance, plan []Transfer) error {
	for i, t := range plan {
		if t.Amount <= 0 {
			return fmt.Errorf("%w: transfer %d has non-positive amount %d", ErrPlanDoesNotSettle, i, t.Amount.Int64())
		}
		if t.From == t.To {
			return fmt.Errorf("%w: transfer %d pays %q to itself", ErrPlanDoesNotSettle, i, t.From)
		}
	}
	nets, err := ApplyTransfers(balances, plan)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlanDoesNotSettle, err)
	}
	for id, net := range nets {
		if !net.IsZero() {
			return fmt.Errorf("%w: %q left at %d", ErrPlanDoesNotSettle, id, net.Int64())
		}
	}
	return nil
}

package calculator

import (
	"fmt"
	"math/bits"
	"slices"
	"strings"

	"github.com/mmynk/settleup/internal/money"
)

const (
	// maxExactLimit bounds the 2^n state table. Larger limits are clamped to it.
	maxExactLimit = 16

	// DefaultExactLimit is the largest number of non-zero balances Plan solves exactly.
	DefaultExactLimit = maxExactLimit
)

// PlanSettlementExact returns a plan with the minimum possible number of transfers
// when at most limit balances are non-zero, and falls back to PlanSettlement otherwise.
//
// A group of n non-zero balances that can be partitioned into k disjoint
// zero-sum subsets needs exactly n-k transfers. The maximum k is found by a
// dynamic program over subsets (O(2^n * n)); each subset is then settled
// greedily, which takes at most size-1 transfers per subset.
//
// The output is deterministic and carries the same guarantees and errors as
// PlanSettlement.
func PlanSettlementExact(balances map[string]Balance, limit int) ([]Transfer, error) {
	ids := sortedIDs(balances)
	if err := checkConservation(balances, ids); err != nil {
		return nil, err
	}

	var nonZero []string
	for _, id := range ids {
		if !balances[id].Net.IsZero() {
			nonZero = append(nonZero, id)
		}
	}
	if limit > maxExactLimit {
		limit = maxExactLimit
	}
	if len(nonZero) > limit || len(nonZero) < 4 {
		// Fewer than four non-zero balances cannot split into two zero-sum subsets.
		return PlanSettlement(balances)
	}

	subsets, err := zeroSumPartition(balances, nonZero)
	if err != nil {
		return nil, err
	}

	var plan []Transfer
	for _, subset := range subsets {
		part := make(map[string]Balance, len(subset))
		for _, id := range subset {
			part[id] = balances[id]
		}
		transfers, err := PlanSettlement(part)
		if err != nil {
			return nil, err
		}
		plan = append(plan, transfers...)
	}
	return plan, nil
}

// zeroSumPartition splits ids into the maximum number of disjoint zero-sum subsets.
// Subsets are ordered by their smallest member id; members are sorted within a subset.
func zeroSumPartition(balances map[string]Balance, ids []string) ([][]string, error) {
	n := len(ids)
	full := 1<<n - 1

	sum := make([]money.Money, full+1)
	for mask := 1; mask <= full; mask++ {
		low := bits.TrailingZeros(uint(mask))
		s, err := sum[mask&(mask-1)].Add(balances[ids[low]].Net)
		if err != nil {
			return nil, fmt.Errorf("failed to sum balances: %w", err)
		}
		sum[mask] = s
	}

	// groups[mask] is the most zero-sum subsets obtainable by adding the members
	// of mask one at a time and closing a subset whenever the running sum is zero.
	groups := make([]int8, full+1)
	for mask := 1; mask <= full; mask++ {
		best := int8(0)
		for rest := mask; rest != 0; rest &= rest - 1 {
			bit := rest & -rest
			if g := groups[mask^bit]; g > best {
				best = g
			}
		}
		if sum[mask].IsZero() {
			best++
		}
		groups[mask] = best
	}

	// Walk back from the full set, removing the lowest-index member that keeps
	// the optimum. Every zero-sum mask on the path closes one subset.
	var subsets [][]string
	closed := full
	for mask := full; mask != 0; {
		gain := int8(0)
		if sum[mask].IsZero() {
			gain = 1
		}
		next := -1
		for rest := mask; rest != 0; rest &= rest - 1 {
			bit := rest & -rest
			if groups[mask^bit]+gain == groups[mask] {
				next = mask ^ bit
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("zero-sum partition: no predecessor for mask %b", mask)
		}
		if sum[next].IsZero() {
			subsets = append(subsets, membersOf(ids, closed^next))
			closed = next
		}
		mask = next
	}

	slices.SortFunc(subsets, func(a, b []string) int {
		return strings.Compare(a[0], b[0])
	})
	return subsets, nil
}

func membersOf(ids []string, mask int) []string {
	var out []string
	for i, id := range ids {
		if mask&(1<<i) != 0 {
			out = append(out, id)
		}
	}
	return out
}

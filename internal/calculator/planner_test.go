package calculator

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/mmynk/settleup/internal/money"
)

func balanceMap(nets map[string]money.Money) map[string]Balance {
	out := make(map[string]Balance, len(nets))
	for id, n := range nets {
		out[id] = Balance{UserID: id, Net: n}
	}
	return out
}

func nonZeroCount(balances map[string]Balance) int {
	n := 0
	for _, b := range balances {
		if !b.Net.IsZero() {
			n++
		}
	}
	return n
}

func TestPlanSettlement(t *testing.T) {
	tests := []struct {
		name string
		nets map[string]money.Money
		want []Transfer
	}{
		{
			name: "empty",
			nets: map[string]money.Money{},
			want: nil,
		},
		{
			name: "all settled",
			nets: map[string]money.Money{"A": 0, "B": 0},
			want: nil,
		},
		{
			name: "one creditor two debtors tie broken by id",
			nets: map[string]money.Money{"A": 8000, "B": -4000, "C": -4000},
			want: []Transfer{
				{From: "B", To: "A", Amount: 4000},
				{From: "C", To: "A", Amount: 4000},
			},
		},
		{
			name: "largest debtor pays largest creditor first",
			nets: map[string]money.Money{"A": 300, "B": 700, "C": -900, "D": -100},
			want: []Transfer{
				{From: "C", To: "B", Amount: 700},
				{From: "C", To: "A", Amount: 200},
				{From: "D", To: "A", Amount: 100},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balances := balanceMap(tt.nets)
			plan, err := PlanSettlement(balances)
			if err != nil {
				t.Fatalf("PlanSettlement() error = %v", err)
			}
			if !reflect.DeepEqual(plan, tt.want) {
				t.Errorf("plan = %+v, want %+v", plan, tt.want)
			}
			if err := VerifyPlan(balances, plan); err != nil {
				t.Errorf("VerifyPlan() error = %v", err)
			}
		})
	}
}

func TestPlanSettlement_Inconsistent(t *testing.T) {
	_, err := PlanSettlement(balanceMap(map[string]money.Money{"A": 100, "B": -99}))
	var inconsistent *InconsistentBalanceError
	if !errors.As(err, &inconsistent) {
		t.Fatalf("expected InconsistentBalanceError, got %v", err)
	}
	if inconsistent.Sum != 1 {
		t.Errorf("Sum = %d, want 1", inconsistent.Sum)
	}

	_, err = PlanSettlementExact(balanceMap(map[string]money.Money{"A": 5, "B": 5, "C": -5, "D": -4}), DefaultExactLimit)
	if !errors.As(err, &inconsistent) {
		t.Fatalf("exact: expected InconsistentBalanceError, got %v", err)
	}
}

// Scenario: one expense of 120.00 paid by A, split equally among A, B, C.
func TestScenario_SinglePayerEqualSplit(t *testing.T) {
	expense := equalExpense(t, "dinner", 12000, "A", "A", "B", "C")
	balances, err := ComputeBalances([]string{"A", "B", "C"}, []ExpenseForBalance{expense})
	if err != nil {
		t.Fatalf("ComputeBalances() error = %v", err)
	}

	plan, err := PlanSettlement(balances)
	if err != nil {
		t.Fatalf("PlanSettlement() error = %v", err)
	}
	want := []Transfer{
		{From: "B", To: "A", Amount: 4000},
		{From: "C", To: "A", Amount: 4000},
	}
	if !reflect.DeepEqual(plan, want) {
		t.Errorf("plan = %+v, want %+v", plan, want)
	}
}

// Scenario: opposing expenses cancel partially before planning.
func TestScenario_PartialCancellation(t *testing.T) {
	members := []string{"A", "B"}
	first := equalExpense(t, "e1", 10000, "A", "A", "B")
	second := equalExpense(t, "e2", 6000, "B", "A", "B")

	naive := 0
	for _, e := range []ExpenseForBalance{first, second} {
		b, err := ComputeBalances(members, []ExpenseForBalance{e})
		if err != nil {
			t.Fatalf("ComputeBalances() error = %v", err)
		}
		p, err := PlanSettlement(b)
		if err != nil {
			t.Fatalf("PlanSettlement() error = %v", err)
		}
		naive += len(p)
	}

	balances, err := ComputeBalances(members, []ExpenseForBalance{first, second})
	if err != nil {
		t.Fatalf("ComputeBalances() error = %v", err)
	}
	if balances["A"].Net != 2000 || balances["B"].Net != -2000 {
		t.Fatalf("unexpected nets A=%d B=%d", balances["A"].Net, balances["B"].Net)
	}

	plan, err := PlanSettlement(balances)
	if err != nil {
		t.Fatalf("PlanSettlement() error = %v", err)
	}
	if len(plan) >= naive {
		t.Errorf("combined plan has %d transfers, want fewer than %d", len(plan), naive)
	}
	if len(plan) != 1 || plan[0] != (Transfer{From: "B", To: "A", Amount: 2000}) {
		t.Errorf("plan = %+v", plan)
	}
}

func TestPlanSettlementExact_BeatsGreedy(t *testing.T) {
	balances := balanceMap(map[string]money.Money{"A": 500, "B": -200, "C": -300, "D": 400, "E": -400})

	greedy, err := PlanSettlement(balances)
	if err != nil {
		t.Fatalf("PlanSettlement() error = %v", err)
	}
	if len(greedy) != 4 {
		t.Fatalf("greedy plan has %d transfers, want 4: %+v", len(greedy), greedy)
	}

	exact, err := PlanSettlementExact(balances, DefaultExactLimit)
	if err != nil {
		t.Fatalf("PlanSettlementExact() error = %v", err)
	}
	want := []Transfer{
		{From: "C", To: "A", Amount: 300},
		{From: "B", To: "A", Amount: 200},
		{From: "E", To: "D", Amount: 400},
	}
	if !reflect.DeepEqual(exact, want) {
		t.Errorf("exact plan = %+v, want %+v", exact, want)
	}
	if err := VerifyPlan(balances, exact); err != nil {
		t.Errorf("VerifyPlan() error = %v", err)
	}
}

func TestPlanSettlementExact_FallsBackAboveLimit(t *testing.T) {
	balances := balanceMap(map[string]money.Money{"A": 500, "B": -200, "C": -300, "D": 400, "E": -400})

	got, err := PlanSettlementExact(balances, 4)
	if err != nil {
		t.Fatalf("PlanSettlementExact() error = %v", err)
	}
	greedy, _ := PlanSettlement(balances)
	if !reflect.DeepEqual(got, greedy) {
		t.Errorf("expected greedy fallback, got %+v", got)
	}
}

// scaledGroups builds independent five-member groups, where greedy needs one
// transfer more than necessary, and matched pairs. Each group or pair lives at
// its own scale, so nothing cancels across them.
func scaledGroups(groupScales, pairScales []int64) map[string]Balance {
	nets := make(map[string]money.Money)
	for i, s := range groupScales {
		for j, v := range []int64{500, -200, -300, 400, -400} {
			nets[fmt.Sprintf("g%d-%d", i, j)] = money.New(v * s)
		}
	}
	for i, s := range pairScales {
		nets[fmt.Sprintf("p%d-a", i)] = money.New(7 * s)
		nets[fmt.Sprintf("p%d-b", i)] = money.New(-7 * s)
	}
	return balanceMap(nets)
}

func TestPlanSettlementExact_Limit(t *testing.T) {
	tests := []struct {
		name     string
		balances map[string]Balance
		limit    int
		want     int
	}{
		// 16 non-zero balances: two groups (3 each) and three pairs (1 each).
		{"default limit solves 16 exactly", scaledGroups([]int64{1, 1e3}, []int64{1e6, 1e9, 1e12}), DefaultExactLimit, 9},
		// 17 non-zero balances exceed the cap even when asked for more.
		{"limit is clamped to 16", scaledGroups([]int64{1, 1e3, 1e6}, []int64{1e9}), 20, 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanSettlementExact(tt.balances, tt.limit)
			if err != nil {
				t.Fatalf("PlanSettlementExact() error = %v", err)
			}
			if len(plan) != tt.want {
				t.Errorf("got %d transfers, want %d", len(plan), tt.want)
			}
			if err := VerifyPlan(tt.balances, plan); err != nil {
				t.Errorf("VerifyPlan() error = %v", err)
			}
		})
	}

	viaPlan, err := Plan(StrategyExact, scaledGroups([]int64{1, 1e3}, []int64{1e6, 1e9, 1e12}))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(viaPlan) != 9 {
		t.Errorf("Plan(exact) got %d transfers, want 9", len(viaPlan))
	}
}

func TestPlan_Strategy(t *testing.T) {
	balances := balanceMap(map[string]money.Money{"A": 100, "B": -100})
	for _, s := range []Strategy{"", StrategyGreedy, StrategyExact} {
		plan, err := Plan(s, balances)
		if err != nil {
			t.Fatalf("Plan(%q) error = %v", s, err)
		}
		if len(plan) != 1 {
			t.Errorf("Plan(%q) = %+v", s, plan)
		}
	}
	if _, err := Plan("fastest", balances); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestVerifyPlan_Rejects(t *testing.T) {
	balances := balanceMap(map[string]money.Money{"A": 100, "B": -100})

	tests := []struct {
		name string
		plan []Transfer
	}{
		{"incomplete", []Transfer{{From: "B", To: "A", Amount: 50}}},
		{"zero amount", []Transfer{{From: "B", To: "A", Amount: 0}, {From: "B", To: "A", Amount: 100}}},
		{"self transfer", []Transfer{{From: "A", To: "A", Amount: 100}}},
		{"unknown user", []Transfer{{From: "Z", To: "A", Amount: 100}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyPlan(balances, tt.plan); !errors.Is(err, ErrPlanDoesNotSettle) {
				t.Errorf("VerifyPlan() = %v, want ErrPlanDoesNotSettle", err)
			}
		})
	}
}

// randomExpenses builds valid expenses with random payer and participant subsets.
func randomExpenses(t *testing.T, rng *rand.Rand, members []string, count int) []ExpenseForBalance {
	t.Helper()
	pick := func() []string {
		var ids []string
		for _, m := range members {
			if rng.Intn(2) == 0 {
				ids = append(ids, m)
			}
		}
		if len(ids) == 0 {
			ids = append(ids, members[rng.Intn(len(members))])
		}
		return ids
	}

	expenses := make([]ExpenseForBalance, count)
	for i := range expenses {
		amount := money.Money(1 + rng.Int63n(1_000_000))
		payers, err := EqualSplit(amount, pick())
		if err != nil {
			t.Fatalf("EqualSplit failed: %v", err)
		}
		participants, err := EqualSplit(amount, pick())
		if err != nil {
			t.Fatalf("EqualSplit failed: %v", err)
		}
		expenses[i] = ExpenseForBalance{
			ID:           fmt.Sprintf("e%d", i),
			Amount:       amount,
			Payers:       payers,
			Participants: participants,
		}
	}
	return expenses
}

func TestPlanningProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		size := 2 + rng.Intn(9)
		members := make([]string, size)
		for i := range members {
			members[i] = fmt.Sprintf("user-%02d", i)
		}
		expenses := randomExpenses(t, rng, members, 1+rng.Intn(15))

		balances, err := ComputeBalances(members, expenses)
		if err != nil {
			t.Fatalf("round %d: ComputeBalances() error = %v", round, err)
		}

		var sum money.Money
		for _, b := range balances {
			sum += b.Net
		}
		if sum != 0 {
			t.Fatalf("round %d: conservation violated, sum = %d", round, sum)
		}

		plan, err := PlanSettlement(balances)
		if err != nil {
			t.Fatalf("round %d: PlanSettlement() error = %v", round, err)
		}
		again, _ := PlanSettlement(balances)
		if !reflect.DeepEqual(plan, again) {
			t.Fatalf("round %d: plan is not deterministic", round)
		}
		if err := VerifyPlan(balances, plan); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		if n := nonZeroCount(balances); n > 0 && len(plan) > n-1 {
			t.Fatalf("round %d: %d transfers for %d non-zero balances", round, len(plan), n)
		}

		exact, err := PlanSettlementExact(balances, DefaultExactLimit)
		if err != nil {
			t.Fatalf("round %d: PlanSettlementExact() error = %v", round, err)
		}
		if err := VerifyPlan(balances, exact); err != nil {
			t.Fatalf("round %d: exact: %v", round, err)
		}
		if len(exact) > len(plan) {
			t.Fatalf("round %d: exact plan (%d) longer than greedy (%d)", round, len(exact), len(plan))
		}
	}
}

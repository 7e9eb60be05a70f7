package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settleup/internal/cache"
	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/events"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
	"github.com/mmynk/settleup/internal/storage/memory"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []events.SettlementCommitted
	err  error
}

func (p *recordingPublisher) PublishSettlementCommitted(_ context.Context, msg events.SettlementCommitted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

type countingCache struct {
	cache.Cache[Snapshot]
	hits, misses int
}

func (c *countingCache) Get(ctx context.Context, key cache.Key) (Snapshot, bool, error) {
	v, ok, err := c.Cache.Get(ctx, key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok, err
}

type fixture struct {
	store *memory.Store
	group *models.Group
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	for _, name := range names {
		require.NoError(t, store.CreateUser(ctx, &models.User{ID: name, Name: name}))
	}
	group := &models.Group{Name: "Trip", Members: names}
	require.NoError(t, store.CreateGroup(ctx, group))
	return &fixture{store: store, group: group}
}

func (f *fixture) addEqualExpense(t *testing.T, amount money.Money, payer string, participants ...string) *models.Expense {
	t.Helper()
	shares, err := calculator.EqualSplit(amount, participants)
	require.NoError(t, err)

	e := &models.Expense{
		GroupID:     f.group.ID,
		Description: "expense",
		Amount:      amount,
		Payers:      []models.Share{{User: models.ByID[models.User](payer), Amount: amount}},
	}
	for _, s := range shares {
		e.Participants = append(e.Participants, models.Share{User: models.ByID[models.User](s.UserID), Amount: s.Amount})
	}
	require.NoError(t, f.store.CreateExpense(context.Background(), e))
	return e
}

func netsOf(balances []MemberBalance) map[string]money.Money {
	out := make(map[string]money.Money, len(balances))
	for _, b := range balances {
		out[b.UserID] = b.Net
	}
	return out
}

func TestService_SinglePayerEqualSplit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")
	f.addEqualExpense(t, 12000, "alice", "alice", "bob", "carol")

	svc := New(f.store)

	balances, err := svc.GetBalances(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]money.Money{"alice": 8000, "bob": -4000, "carol": -4000}, netsOf(balances))
	assert.Equal(t, "alice", balances[0].UserID, "balances are sorted by user ID")
	assert.Equal(t, "alice", balances[0].Name)
	assert.Equal(t, money.Money(12000), balances[0].TotalPaid)

	plan, err := svc.GetSettlementPlan(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Equal(t, []PlannedTransfer{
		{From: UserRef{ID: "bob", Name: "bob"}, To: UserRef{ID: "alice", Name: "alice"}, Amount: 4000},
		{From: UserRef{ID: "carol", Name: "carol"}, To: UserRef{ID: "alice", Name: "alice"}, Amount: 4000},
	}, plan)
}

func TestService_RemainderSplit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")
	f.addEqualExpense(t, 100, "a", "a", "b", "c")

	balances, err := New(f.store).GetBalances(ctx, f.group.ID)
	require.NoError(t, err)
	// Shares are 34, 33, 33 in ascending id order.
	assert.Equal(t, map[string]money.Money{"a": 66, "b": -33, "c": -33}, netsOf(balances))
}

func TestService_CommitSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")
	f.addEqualExpense(t, 12000, "alice", "alice", "bob", "carol")

	pub := &recordingPublisher{}
	svc := New(f.store, WithPublisher(pub))

	committed, err := svc.CommitSettlement(ctx, f.group.ID, "bob", "settling up")
	require.NoError(t, err)
	require.Len(t, committed, 2)
	assert.Equal(t, committed[0].BatchID, committed[1].BatchID)
	assert.Equal(t, 0, committed[0].Position)
	assert.Equal(t, 1, committed[1].Position)
	assert.Equal(t, "settling up", committed[0].Note)

	stored, err := f.store.ListSettlementsByGroup(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	balances, err := svc.GetBalances(ctx, f.group.ID)
	require.NoError(t, err)
	for _, b := range balances {
		assert.True(t, b.Net.IsZero(), "%s should be settled, got %s", b.UserID, b.Net)
	}

	plan, err := svc.GetSettlementPlan(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Empty(t, plan)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, f.group.ID, pub.msgs[0].GroupID)
	assert.Equal(t, committed[0].BatchID, pub.msgs[0].BatchID)
	assert.Len(t, pub.msgs[0].Transfers, 2)

	// Settled group: nothing to write, no event.
	again, err := svc.CommitSettlement(ctx, f.group.ID, "bob", "")
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, pub.msgs, 1)
}

func TestService_CommitSettlement_PublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.addEqualExpense(t, 1000, "a", "a", "b")

	svc := New(f.store, WithPublisher(&recordingPublisher{err: errors.New("broker down")}))
	committed, err := svc.CommitSettlement(ctx, f.group.ID, "b", "")
	require.NoError(t, err)
	assert.Len(t, committed, 1)
}

func TestService_CommitSettlement_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")
	f.addEqualExpense(t, 9000, "a", "a", "b", "c")
	svc := New(f.store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CommitSettlement(ctx, f.group.ID, "a", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.store.ListSettlementsByGroup(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2, "only one batch may be committed")
}

func TestService_CommitSettlement_RequiresUser(t *testing.T) {
	f := newFixture(t, "a", "b")
	_, err := New(f.store).CommitSettlement(context.Background(), f.group.ID, "", "")
	assert.Error(t, err)
}

func TestService_InvalidExpenseFailsWholeGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.addEqualExpense(t, 1000, "a", "a", "b")

	bad := &models.Expense{
		GroupID: f.group.ID,
		Amount:  100,
		Payers:  []models.Share{{User: models.ByID[models.User]("a"), Amount: 100}},
		Participants: []models.Share{
			{User: models.ByID[models.User]("a"), Amount: 50},
			{User: models.ByID[models.User]("b"), Amount: 49},
		},
	}
	require.NoError(t, f.store.CreateExpense(ctx, bad))

	svc := New(f.store)
	balances, err := svc.GetBalances(ctx, f.group.ID)
	assert.Nil(t, balances)
	var verr *calculator.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, bad.ID, verr.ID)

	_, err = svc.CommitSettlement(ctx, f.group.ID, "a", "")
	require.ErrorAs(t, err, &verr)
	stored, _ := f.store.ListSettlementsByGroup(ctx, f.group.ID)
	assert.Empty(t, stored)
}

func TestService_UnknownUserReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	e := &models.Expense{
		GroupID:      f.group.ID,
		Amount:       100,
		Payers:       []models.Share{{User: models.ByID[models.User]("ghost"), Amount: 100}},
		Participants: []models.Share{{User: models.ByID[models.User]("a"), Amount: 100}},
	}
	require.NoError(t, f.store.CreateExpense(ctx, e))

	_, err := New(f.store).GetBalances(ctx, f.group.ID)
	var verr *calculator.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "ghost")
}

func TestService_GroupNotFound(t *testing.T) {
	_, err := New(memory.New()).GetBalances(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_CacheKeyFollowsInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.addEqualExpense(t, 1000, "a", "a", "b")

	c := &countingCache{Cache: cache.NewLRU[Snapshot](16, time.Minute)}
	svc := New(f.store, WithCache(c))

	_, err := svc.GetBalances(ctx, f.group.ID)
	require.NoError(t, err)
	_, err = svc.GetSettlementPlan(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.misses)
	assert.Equal(t, 1, c.hits)

	f.addEqualExpense(t, 500, "b", "a", "b")
	balances, err := svc.GetBalances(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, c.misses, "a changed expense set must not read the old entry")
	assert.Equal(t, map[string]money.Money{"a": 250, "b": -250}, netsOf(balances))

	require.NoError(t, f.store.UpdateUser(ctx, &models.User{ID: "a", Name: "Alice"}))
	balances, err = svc.GetBalances(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, c.misses, "a renamed user must not read the old entry")
	assert.Equal(t, "Alice", balances[0].Name)
}

func TestService_ResultsDoNotAliasCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")
	f.addEqualExpense(t, 12000, "a", "a", "b", "c")
	svc := New(f.store, WithCache(cache.NewLRU[Snapshot](16, time.Minute)))

	// The first read fills the cache, the second is served from it.
	for range 2 {
		balances, err := svc.GetBalances(ctx, f.group.ID)
		require.NoError(t, err)
		require.Equal(t, money.Money(8000), balances[0].Net)
		balances[0].Net = 999999
		balances[1].Name = "mallory"
	}

	for range 2 {
		plan, err := svc.GetSettlementPlan(ctx, f.group.ID)
		require.NoError(t, err)
		require.Len(t, plan, 2)
		require.Equal(t, money.Money(4000), plan[0].Amount)
		plan[0].Amount = 1
	}

	snap, err := svc.Snapshot(ctx, f.group.ID)
	require.NoError(t, err)
	snap.Balances[2].Net = 0

	balances, err := svc.GetBalances(ctx, f.group.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]money.Money{"a": 8000, "b": -4000, "c": -4000}, netsOf(balances))
	assert.Equal(t, "b", balances[1].Name)

	committed, err := svc.CommitSettlement(ctx, f.group.ID, "a", "")
	require.NoError(t, err)
	assert.Len(t, committed, 2)
}

func TestService_ExactStrategy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c", "d", "e")
	// Nets: a +500, b -200, c -300, d +400, e -400.
	f.addEqualExpense(t, 200, "a", "b")
	f.addEqualExpense(t, 300, "a", "c")
	f.addEqualExpense(t, 400, "d", "e")

	greedy, err := New(f.store).GetSettlementPlan(ctx, f.group.ID)
	require.NoError(t, err)
	exact, err := New(f.store, WithStrategy(calculator.StrategyExact)).GetSettlementPlan(ctx, f.group.ID)
	require.NoError(t, err)

	assert.Len(t, greedy, 4)
	assert.Len(t, exact, 3)
}

func TestService_GetBalancesForGroups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	f.addEqualExpense(t, 1000, "a", "a", "b")

	other := &models.Group{Name: "Other", Members: []string{"a", "b"}}
	require.NoError(t, f.store.CreateGroup(ctx, other))

	svc := New(f.store, WithBatchConcurrency(2))
	out, err := svc.GetBalancesForGroups(ctx, []string{f.group.ID, other.ID})
	require.NoError(t, err)
	assert.Equal(t, map[string]money.Money{"a": 500, "b": -500}, netsOf(out[f.group.ID]))
	assert.Equal(t, map[string]money.Money{"a": 0, "b": 0}, netsOf(out[other.ID]))

	_, err = svc.GetBalancesForGroups(ctx, []string{f.group.ID, "missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_CheckMemberRemovable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b", "c")
	f.addEqualExpense(t, 1000, "a", "a", "b")
	svc := New(f.store)

	assert.ErrorIs(t, svc.CheckMemberRemovable(ctx, f.group.ID, "b"), ErrMemberHasBalance)
	assert.NoError(t, svc.CheckMemberRemovable(ctx, f.group.ID, "c"))
	assert.ErrorIs(t, svc.CheckMemberRemovable(ctx, f.group.ID, "zed"), storage.ErrNotFound)

	_, err := svc.CommitSettlement(ctx, f.group.ID, "a", "")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.CheckMemberRemovable(ctx, f.group.ID, "b"), ErrMemberHasHistory)
}

func TestService_ValidateExpense(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a", "b")
	svc := New(f.store)

	e := &models.Expense{
		ID:           "e1",
		Amount:       100,
		Payers:       []models.Share{{User: models.ByID[models.User]("a"), Amount: 100}},
		Participants: []models.Share{{User: models.ByID[models.User]("b"), Amount: 100}},
	}
	require.NoError(t, svc.ValidateExpense(ctx, f.group, e))
	u, ok := e.Payers[0].User.Value()
	require.True(t, ok, "references are resolved in place")
	assert.Equal(t, "a", u.Name)

	e.Participants[0].Amount = 99
	var verr *calculator.ValidationError
	assert.ErrorAs(t, svc.ValidateExpense(ctx, f.group, e), &verr)
}

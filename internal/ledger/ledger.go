// Package ledger is the settlement service: it loads a group's expenses and
// recorded settlements, resolves user references, and turns them into net
// balances and a settlement plan that can be committed atomically.
//
// Computation is pure and delegated to the calculator package. Results are
// cached by (group ID, input fingerprint), so any change to the group's
// members, expenses or settlements produces a new key and stale results are
// never served.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/settleup/internal/cache"
	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/events"
	"github.com/mmynk/settleup/internal/metrics"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/storage"
)

var (
	// ErrMemberHasBalance is returned when removing a member whose net balance is not zero.
	ErrMemberHasBalance = errors.New("member has an outstanding balance")

	// ErrMemberHasHistory is returned when removing a member referenced by expenses or settlements.
	ErrMemberHasHistory = errors.New("member appears in the group's expenses or settlements")
)

// Operation names used for metrics.
const (
	opBalances = "balances"
	opPlan     = "plan"
	opCommit   = "commit"
)

// Service implements balance queries and settle-up commits for groups.
type Service struct {
	users       storage.UserStore
	groups      storage.GroupStore
	expenses    storage.ExpenseStore
	settlements storage.SettlementStore

	cache       cache.Cache[Snapshot]
	metrics     *metrics.Metrics
	publisher   events.Publisher
	strategy    calculator.Strategy
	concurrency int

	commitMu sync.Map // group ID -> *sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the snapshot cache. Defaults to no caching.
func WithCache(c cache.Cache[Snapshot]) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPublisher sets the event publisher used after commits.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithStrategy selects the settlement planner. Defaults to greedy.
func WithStrategy(strategy calculator.Strategy) Option {
	return func(s *Service) { s.strategy = strategy }
}

// WithBatchConcurrency bounds how many groups GetBalancesForGroups computes at once.
func WithBatchConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// New creates a Service over store.
func New(store storage.Store, opts ...Option) *Service {
	s := &Service{
		users:       store,
		groups:      store,
		expenses:    store,
		settlements: store,
		cache:       cache.Nop[Snapshot]{},
		publisher:   events.NopPublisher{},
		strategy:    calculator.StrategyGreedy,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// GetBalances returns every member's net balance, sorted by user ID.
// The balances sum to exactly zero.
func (s *Service) GetBalances(ctx context.Context, groupID string) (balances []MemberBalance, err error) {
	defer func(start time.Time) { s.metrics.ObserveComputation(opBalances, start, err) }(time.Now())

	snap, err := s.Snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return snap.Balances, nil
}

// GetSettlementPlan returns the ordered transfers that would settle the group.
// An already settled group yields an empty plan.
func (s *Service) GetSettlementPlan(ctx context.Context, groupID string) (plan []PlannedTransfer, err error) {
	defer func(start time.Time) { s.metrics.ObserveComputation(opPlan, start, err) }(time.Now())

	snap, err := s.Snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return snap.Plan, nil
}

// GetBalancesForGroups computes balances for several groups concurrently.
// The first failure cancels the rest and is returned.
func (s *Service) GetBalancesForGroups(ctx context.Context, groupIDs []string) (map[string][]MemberBalance, error) {
	results := make([][]MemberBalance, len(groupIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range groupIDs {
		g.Go(func() error {
			balances, err := s.GetBalances(ctx, id)
			if err != nil {
				return fmt.Errorf("group %s: %w", id, err)
			}
			results[i] = balances
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]MemberBalance, len(groupIDs))
	for i, id := range groupIDs {
		out[id] = results[i]
	}
	return out, nil
}

// Snapshot loads the group's current ledger and returns its balances and plan,
// from cache when the fingerprint matches.
func (s *Service) Snapshot(ctx context.Context, groupID string) (*Snapshot, error) {
	in, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return s.snapshotOf(ctx, in)
}

// ledgerInput is one consistent read of a group's ledger.
type ledgerInput struct {
	group       *models.Group
	expenses    []*models.Expense
	settlements []*models.Settlement
	users       map[string]*models.User
}

func (s *Service) load(ctx context.Context, groupID string) (*ledgerInput, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	expenses, err := s.expenses.ListExpensesByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	settlements, err := s.settlements.ListSettlementsByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	users, err := s.users.GetUsersByIDs(ctx, referencedUserIDs(group.Members, expenses, settlements))
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	for _, e := range expenses {
		if err := resolveExpense(users, e); err != nil {
			return nil, err
		}
	}

	return &ledgerInput{group: group, expenses: expenses, settlements: settlements, users: users}, nil
}

func (s *Service) cacheKey(in *ledgerInput) cache.Key {
	fp := Fingerprint(in.group.Members, in.users, in.expenses, in.settlements)
	return cache.Key{GroupID: in.group.ID, Fingerprint: string(s.strategy) + ":" + fp}
}

func (s *Service) snapshotOf(ctx context.Context, in *ledgerInput) (*Snapshot, error) {
	key := s.cacheKey(in)

	cached, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.CacheLookup("error")
		slog.WarnContext(ctx, "Ledger cache read failed", "group_id", key.GroupID, "error", err)
	case ok:
		s.metrics.CacheLookup("hit")
		hit := cached.clone()
		return &hit, nil
	default:
		s.metrics.CacheLookup("miss")
	}

	snap, err := s.compute(in, key.Fingerprint)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, snap.clone()); err != nil {
		slog.WarnContext(ctx, "Ledger cache write failed", "group_id", key.GroupID, "error", err)
	}
	return snap, nil
}

func (s *Service) compute(in *ledgerInput, fingerprint string) (*Snapshot, error) {
	expenses := make([]calculator.ExpenseForBalance, len(in.expenses))
	for i, e := range in.expenses {
		expenses[i] = toBalanceExpense(e)
	}
	settlements := make([]calculator.SettlementForBalance, len(in.settlements))
	for i, st := range in.settlements {
		settlements[i] = toBalanceSettlement(st)
	}

	balances, err := calculator.ComputeBalances(in.group.Members, expenses, settlements...)
	if err != nil {
		return nil, err
	}
	plan, err := calculator.Plan(s.strategy, balances)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		GroupID:     in.group.ID,
		Fingerprint: fingerprint,
		Balances:    make([]MemberBalance, 0, len(balances)),
		Plan:        make([]PlannedTransfer, len(plan)),
	}
	for _, b := range balances {
		snap.Balances = append(snap.Balances, MemberBalance{
			UserID:    b.UserID,
			Name:      in.userName(b.UserID),
			Net:       b.Net,
			TotalPaid: b.TotalPaid,
			TotalOwed: b.TotalOwed,
		})
	}
	slices.SortFunc(snap.Balances, func(a, b MemberBalance) int {
		return strings.Compare(a.UserID, b.UserID)
	})
	for i, t := range plan {
		snap.Plan[i] = PlannedTransfer{
			From:   UserRef{ID: t.From, Name: in.userName(t.From)},
			To:     UserRef{ID: t.To, Name: in.userName(t.To)},
			Amount: t.Amount,
		}
	}
	return snap, nil
}

func (in *ledgerInput) userName(id string) string {
	if u, ok := in.users[id]; ok {
		return u.Name
	}
	return ""
}

// CommitSettlement computes the group's current plan and persists every
// transfer of it as one atomic batch. An already settled group writes
// nothing and returns an empty result.
//
// Commits for the same group are serialized within this process. After a
// successful write a SettlementCommitted event is published; a publish
// failure is logged and does not fail the commit.
func (s *Service) CommitSettlement(ctx context.Context, groupID, createdBy, note string) (committed []*models.Settlement, err error) {
	defer func(start time.Time) { s.metrics.ObserveComputation(opCommit, start, err) }(time.Now())

	if createdBy == "" {
		return nil, errors.New("committing user is required")
	}

	mu := s.groupLock(groupID)
	mu.Lock()
	defer mu.Unlock()

	in, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshotOf(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(snap.Plan) == 0 {
		return nil, nil
	}

	if err := verifySnapshot(snap); err != nil {
		return nil, err
	}

	batchID := uuid.New().String()
	now := time.Now().Unix()
	committed = make([]*models.Settlement, len(snap.Plan))
	for i, t := range snap.Plan {
		committed[i] = &models.Settlement{
			ID:         uuid.New().String(),
			BatchID:    batchID,
			GroupID:    groupID,
			FromUserID: t.From.ID,
			ToUserID:   t.To.ID,
			Amount:     t.Amount,
			Position:   i,
			CreatedAt:  now,
			CreatedBy:  createdBy,
			Note:       note,
		}
	}

	if err := s.settlements.AppendSettlements(ctx, committed); err != nil {
		return nil, fmt.Errorf("failed to append settlements: %w", err)
	}
	s.metrics.TransfersCommitted(len(committed))

	slog.InfoContext(ctx, "Settlement committed",
		"group_id", groupID,
		"batch_id", batchID,
		"transfers", len(committed),
		"created_by", createdBy)

	msg := events.NewSettlementCommitted(groupID, createdBy, committed)
	if err := s.publisher.PublishSettlementCommitted(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish settlement committed event",
			"group_id", groupID,
			"batch_id", batchID,
			"error", err)
	}

	return committed, nil
}

// verifySnapshot re-checks that the plan zeroes every balance before anything is written.
func verifySnapshot(snap *Snapshot) error {
	balances := make(map[string]calculator.Balance, len(snap.Balances))
	for _, b := range snap.Balances {
		balances[b.UserID] = calculator.Balance{UserID: b.UserID, Net: b.Net}
	}
	plan := make([]calculator.Transfer, len(snap.Plan))
	for i, t := range snap.Plan {
		plan[i] = calculator.Transfer{From: t.From.ID, To: t.To.ID, Amount: t.Amount}
	}
	return calculator.VerifyPlan(balances, plan)
}

func (s *Service) groupLock(groupID string) *sync.Mutex {
	mu, _ := s.commitMu.LoadOrStore(groupID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ListSettlements returns the group's committed settlement history.
func (s *Service) ListSettlements(ctx context.Context, groupID string) ([]*models.Settlement, error) {
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	settlements, err := s.settlements.ListSettlementsByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	return settlements, nil
}

// CheckMemberRemovable reports whether userID can leave the group without
// changing anyone's balance or orphaning history.
func (s *Service) CheckMemberRemovable(ctx context.Context, groupID, userID string) error {
	in, err := s.load(ctx, groupID)
	if err != nil {
		return err
	}
	if !in.group.HasMember(userID) {
		return fmt.Errorf("member %s of group %s: %w", userID, groupID, storage.ErrNotFound)
	}

	snap, err := s.snapshotOf(ctx, in)
	if err != nil {
		return err
	}
	for _, b := range snap.Balances {
		if b.UserID == userID && !b.Net.IsZero() {
			return fmt.Errorf("%w: %s", ErrMemberHasBalance, b.Net)
		}
	}

	for _, e := range in.expenses {
		for _, id := range append(models.UserIDs(e.Payers), models.UserIDs(e.Participants)...) {
			if id == userID {
				return fmt.Errorf("%w: expense %s", ErrMemberHasHistory, e.ID)
			}
		}
	}
	for _, st := range in.settlements {
		if st.FromUserID == userID || st.ToUserID == userID {
			return fmt.Errorf("%w: settlement %s", ErrMemberHasHistory, st.ID)
		}
	}
	return nil
}

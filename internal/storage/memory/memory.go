// Package memory provides an in-memory implementation of the storage.Store interface.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is an in-memory storage.Store. It is safe for concurrent use.
// Values are cloned on the way in and out.
type Store struct {
	mu sync.RWMutex

	users       map[string]models.User
	groups      map[string]models.Group
	expenses    map[string]models.Expense
	settlements map[string][]models.Settlement // by group
	settleIDs   map[string]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]models.User),
		groups:      make(map[string]models.Group),
		expenses:    make(map[string]models.Expense),
		settlements: make(map[string][]models.Settlement),
		settleIDs:   make(map[string]struct{}),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	_ = ctx
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[user.ID]
	if !ok {
		return fmt.Errorf("user %s: %w", user.ID, storage.ErrNotFound)
	}
	u.Name = user.Name
	u.Email = user.Email
	s.users[user.ID] = u
	return nil
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = &u
		}
	}
	return out, nil
}

func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	_ = ctx
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group.ID]; ok {
		return fmt.Errorf("group %s already exists", group.ID)
	}
	if err := s.checkUsersLocked(group.Members); err != nil {
		return err
	}
	g := cloneGroup(*group)
	g.Members = normalizeMembers(g.Members)
	s.groups[group.ID] = g
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	out := cloneGroup(g)
	return &out, nil
}

func (s *Store) UpdateGroup(ctx context.Context, group *models.Group) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[group.ID]
	if !ok {
		return fmt.Errorf("group %s: %w", group.ID, storage.ErrNotFound)
	}
	g.Name = group.Name
	g.Description = group.Description
	s.groups[group.ID] = g
	return nil
}

func (s *Store) ListGroupsByUser(ctx context.Context, userID string) ([]*models.Group, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Group
	for _, g := range s.groups {
		if g.HasMember(userID) {
			c := cloneGroup(g)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err := s.checkUsersLocked(userIDs); err != nil {
		return err
	}
	g.Members = normalizeMembers(append(slices.Clone(g.Members), userIDs...))
	s.groups[groupID] = g
	return nil
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok || !g.HasMember(userID) {
		return fmt.Errorf("member %s of group %s: %w", userID, groupID, storage.ErrNotFound)
	}
	g.Members = slices.DeleteFunc(slices.Clone(g.Members), func(m string) bool { return m == userID })
	s.groups[groupID] = g
	return nil
}

func (s *Store) CreateExpense(ctx context.Context, expense *models.Expense) error {
	_ = ctx
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = expense.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[expense.GroupID]; !ok {
		return fmt.Errorf("group %s: %w", expense.GroupID, storage.ErrNotFound)
	}
	if _, ok := s.expenses[expense.ID]; ok {
		return fmt.Errorf("expense %s already exists", expense.ID)
	}
	s.expenses[expense.ID] = cloneExpense(*expense)
	return nil
}

func (s *Store) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[expenseID]
	if !ok {
		return nil, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	out := cloneExpense(e)
	return &out, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	_ = ctx
	expense.UpdatedAt = time.Now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.expenses[expense.ID]
	if !ok || existing.GroupID != expense.GroupID {
		return fmt.Errorf("expense %s: %w", expense.ID, storage.ErrNotFound)
	}
	updated := cloneExpense(*expense)
	updated.CreatedAt = existing.CreatedAt
	s.expenses[expense.ID] = updated
	return nil
}

func (s *Store) DeleteExpense(ctx context.Context, expenseID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[expenseID]; !ok {
		return fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	delete(s.expenses, expenseID)
	return nil
}

func (s *Store) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Expense
	for _, e := range s.expenses {
		if e.GroupID != groupID {
			continue
		}
		c := cloneExpense(e)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AppendSettlements validates the whole batch before writing any of it.
func (s *Store) AppendSettlements(ctx context.Context, settlements []*models.Settlement) error {
	_ = ctx
	if len(settlements) == 0 {
		return nil
	}
	now := time.Now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]models.Settlement, 0, len(settlements))
	seen := make(map[string]struct{}, len(settlements))
	for _, st := range settlements {
		if _, ok := s.groups[st.GroupID]; !ok {
			return fmt.Errorf("group %s: %w", st.GroupID, storage.ErrNotFound)
		}
		if st.Amount <= 0 {
			return fmt.Errorf("settlement amount must be positive, got %d", st.Amount.Int64())
		}
		id := st.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, ok := s.settleIDs[id]; ok {
			return fmt.Errorf("settlement %s already exists", id)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("settlement %s repeated in batch", id)
		}
		seen[id] = struct{}{}

		c := *st
		c.ID = id
		if c.CreatedAt == 0 {
			c.CreatedAt = now
		}
		batch = append(batch, c)
	}

	for i, c := range batch {
		settlements[i].ID = c.ID
		settlements[i].CreatedAt = c.CreatedAt
		s.settleIDs[c.ID] = struct{}{}
		s.settlements[c.GroupID] = append(s.settlements[c.GroupID], c)
	}
	return nil
}

func (s *Store) ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.settlements[groupID]
	out := make([]*models.Settlement, len(stored))
	for i := range stored {
		c := stored[i]
		out[i] = &c
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		if a.BatchID != b.BatchID {
			return a.BatchID < b.BatchID
		}
		return a.Position < b.Position
	})
	return out, nil
}

func (s *Store) checkUsersLocked(ids []string) error {
	for _, id := range ids {
		if _, ok := s.users[id]; !ok {
			return fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
		}
	}
	return nil
}

func normalizeMembers(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func cloneGroup(g models.Group) models.Group {
	g.Members = slices.Clone(g.Members)
	return g
}

// cloneExpense copies e and drops resolved user values, matching what the
// SQL backends return.
func cloneExpense(e models.Expense) models.Expense {
	e.Payers = unresolved(e.Payers)
	e.Participants = unresolved(e.Participants)
	return e
}

func unresolved(shares []models.Share) []models.Share {
	if shares == nil {
		return nil
	}
	out := make([]models.Share, len(shares))
	for i, s := range shares {
		out[i] = models.Share{User: models.ByID[models.User](s.User.ID()), Amount: s.Amount}
	}
	return out
}

// Package storagetest holds the behavioral contract every storage.Store backend must satisfy.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

// CleanupFunc releases a store created by a Factory.
type CleanupFunc = func()

// Factory returns a fresh or isolated store for one contract run.
type Factory func(t *testing.T) (storage.Store, CleanupFunc)

// Run executes the full storage contract against the store built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	t.Run("Users", func(t *testing.T) { runUsers(t, store) })
	t.Run("Groups", func(t *testing.T) { runGroups(t, store) })
	t.Run("UpdateGroup", func(t *testing.T) { runUpdateGroup(t, store) })
	t.Run("ListGroupsByUser", func(t *testing.T) { runListGroupsByUser(t, store) })
	t.Run("Expenses", func(t *testing.T) { runExpenses(t, store) })
	t.Run("Settlements", func(t *testing.T) { runSettlements(t, store) })
}

func seedUsers(t *testing.T, store storage.Store, names ...string) []string {
	t.Helper()
	ids := make([]string, len(names))
	for i, name := range names {
		u := &models.User{Name: name, Email: name + "@example.com"}
		if err := store.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("CreateUser(%s): %v", name, err)
		}
		ids[i] = u.ID
	}
	return ids
}

func seedGroup(t *testing.T, store storage.Store, members []string) *models.Group {
	t.Helper()
	g := &models.Group{Name: "Trip " + uuid.NewString()[:8], Members: members}
	if err := store.CreateGroup(context.Background(), g); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	return g
}

func runUsers(t *testing.T, store storage.Store) {
	ctx := context.Background()

	u := &models.User{Name: "Alice", Email: "alice@example.com"}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.CreatedAt == 0 {
		t.Fatalf("expected ID and CreatedAt to be assigned, got %+v", u)
	}

	got, err := store.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Name != "Alice" || got.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", got)
	}

	if _, err := store.GetUser(ctx, uuid.NewString()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetUser missing: expected ErrNotFound, got %v", err)
	}

	if err := store.UpdateUser(ctx, &models.User{ID: u.ID, Name: "Alicia", Email: "alicia@example.com"}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got, err = store.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser after update: %v", err)
	}
	if got.Name != "Alicia" || got.Email != "alicia@example.com" || got.CreatedAt != u.CreatedAt {
		t.Fatalf("unexpected user after update: %+v", got)
	}
	if err := store.UpdateUser(ctx, &models.User{ID: uuid.NewString(), Name: "x"}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("UpdateUser missing: expected ErrNotFound, got %v", err)
	}

	missing := uuid.NewString()
	users, err := store.GetUsersByIDs(ctx, []string{u.ID, missing})
	if err != nil {
		t.Fatalf("GetUsersByIDs: %v", err)
	}
	if len(users) != 1 || users[u.ID] == nil {
		t.Fatalf("expected only %s, got %v", u.ID, users)
	}

	empty, err := store.GetUsersByIDs(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("GetUsersByIDs(nil) = %v, %v", empty, err)
	}
}

func runGroups(t *testing.T, store storage.Store) {
	ctx := context.Background()
	ids := seedUsers(t, store, "Alice", "Bob", "Carol")

	g := seedGroup(t, store, ids[:2])
	if g.ID == "" || g.CreatedAt == 0 {
		t.Fatalf("expected ID and CreatedAt to be assigned, got %+v", g)
	}

	got, err := store.GetGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if len(got.Members) != 2 || !got.HasMember(ids[0]) || !got.HasMember(ids[1]) {
		t.Fatalf("unexpected members: %v", got.Members)
	}
	if got.Members[0] > got.Members[1] {
		t.Fatalf("members not sorted: %v", got.Members)
	}

	if err := store.AddGroupMembers(ctx, g.ID, []string{ids[2], ids[0]}); err != nil {
		t.Fatalf("AddGroupMembers: %v", err)
	}
	got, _ = store.GetGroup(ctx, g.ID)
	if len(got.Members) != 3 {
		t.Fatalf("expected 3 members after add, got %v", got.Members)
	}

	if err := store.RemoveGroupMember(ctx, g.ID, ids[1]); err != nil {
		t.Fatalf("RemoveGroupMember: %v", err)
	}
	got, _ = store.GetGroup(ctx, g.ID)
	if got.HasMember(ids[1]) || len(got.Members) != 2 {
		t.Fatalf("member not removed: %v", got.Members)
	}
	if err := store.RemoveGroupMember(ctx, g.ID, ids[1]); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second remove: expected ErrNotFound, got %v", err)
	}

	if _, err := store.GetGroup(ctx, uuid.NewString()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetGroup missing: expected ErrNotFound, got %v", err)
	}
	if err := store.AddGroupMembers(ctx, uuid.NewString(), ids[:1]); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("AddGroupMembers missing group: expected ErrNotFound, got %v", err)
	}
	if err := store.CreateGroup(ctx, &models.Group{Name: "ghosts", Members: []string{uuid.NewString()}}); err == nil {
		t.Fatalf("expected error creating group with unknown member")
	}
}

func runUpdateGroup(t *testing.T, store storage.Store) {
	ctx := context.Background()
	ids := seedUsers(t, store, "Alice", "Bob")
	g := seedGroup(t, store, ids)

	update := &models.Group{ID: g.ID, Name: "Ski trip", Description: "Chalet and lift passes"}
	if err := store.UpdateGroup(ctx, update); err != nil {
		t.Fatalf("UpdateGroup: %v", err)
	}

	got, err := store.GetGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if got.Name != "Ski trip" || got.Description != "Chalet and lift passes" {
		t.Fatalf("group not updated: %+v", got)
	}
	if got.CreatedAt != g.CreatedAt || len(got.Members) != 2 {
		t.Fatalf("update changed more than name and description: %+v", got)
	}

	if err := store.UpdateGroup(ctx, &models.Group{ID: uuid.NewString(), Name: "x"}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("UpdateGroup missing: expected ErrNotFound, got %v", err)
	}
}

func runListGroupsByUser(t *testing.T, store storage.Store) {
	ctx := context.Background()
	ids := seedUsers(t, store, "Alice", "Bob", "Carol")

	older := &models.Group{Name: "Older", Members: ids[:2], CreatedAt: 100}
	newer := &models.Group{Name: "Newer", Members: ids, CreatedAt: 200}
	other := &models.Group{Name: "Other", Members: ids[1:], CreatedAt: 150}
	for _, g := range []*models.Group{newer, older, other} {
		if err := store.CreateGroup(ctx, g); err != nil {
			t.Fatalf("CreateGroup(%s): %v", g.Name, err)
		}
	}

	groups, err := store.ListGroupsByUser(ctx, ids[0])
	if err != nil {
		t.Fatalf("ListGroupsByUser: %v", err)
	}
	if len(groups) != 2 || groups[0].ID != older.ID || groups[1].ID != newer.ID {
		t.Fatalf("expected [Older Newer], got %+v", groups)
	}
	if len(groups[1].Members) != 3 {
		t.Fatalf("expected members to be loaded, got %v", groups[1].Members)
	}

	if err := store.RemoveGroupMember(ctx, older.ID, ids[0]); err != nil {
		t.Fatalf("RemoveGroupMember: %v", err)
	}
	groups, err = store.ListGroupsByUser(ctx, ids[0])
	if err != nil {
		t.Fatalf("ListGroupsByUser after remove: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != newer.ID {
		t.Fatalf("expected only Newer after removal, got %+v", groups)
	}

	none, err := store.ListGroupsByUser(ctx, uuid.NewString())
	if err != nil || len(none) != 0 {
		t.Fatalf("ListGroupsByUser(unknown) = %v, %v", none, err)
	}
}

func runExpenses(t *testing.T, store storage.Store) {
	ctx := context.Background()
	ids := seedUsers(t, store, "Alice", "Bob", "Carol")
	g := seedGroup(t, store, ids)

	share := func(id string, amount int64) models.Share {
		return models.Share{User: models.Resolved(id, models.User{ID: id}), Amount: money.New(amount)}
	}

	first := &models.Expense{
		GroupID:      g.ID,
		Description:  "Dinner",
		Category:     "food",
		Amount:       12000,
		Payers:       []models.Share{share(ids[0], 12000)},
		Participants: []models.Share{share(ids[0], 4000), share(ids[1], 4000), share(ids[2], 4000)},
		CreatedAt:    100,
	}
	if err := store.CreateExpense(ctx, first); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if first.ID == "" || first.UpdatedAt == 0 {
		t.Fatalf("expected ID and UpdatedAt to be assigned, got %+v", first)
	}

	second := &models.Expense{
		GroupID:      g.ID,
		Description:  "Taxi",
		Amount:       3001,
		Payers:       []models.Share{share(ids[1], 2000), share(ids[2], 1001)},
		Participants: []models.Share{share(ids[2], 3001)},
		CreatedAt:    200,
	}
	if err := store.CreateExpense(ctx, second); err != nil {
		t.Fatalf("CreateExpense second: %v", err)
	}

	got, err := store.GetExpense(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if got.Amount != 12000 || got.Description != "Dinner" || got.Category != "food" || got.GroupID != g.ID {
		t.Fatalf("unexpected expense: %+v", got)
	}
	if len(got.Payers) != 1 || len(got.Participants) != 3 {
		t.Fatalf("unexpected shares: payers=%v participants=%v", got.Payers, got.Participants)
	}
	for i, p := range got.Participants {
		if p.User.ID() != first.Participants[i].User.ID() || p.Amount != 4000 {
			t.Fatalf("participant %d = %+v", i, p)
		}
		if p.User.IsResolved() {
			t.Fatalf("loaded shares must be unresolved references")
		}
	}

	list, err := store.ListExpensesByGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListExpensesByGroup: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("unexpected list order: %v", list)
	}
	if len(list[1].Payers) != 2 || list[1].Payers[0].User.ID() != ids[1] || list[1].Payers[1].Amount != 1001 {
		t.Fatalf("payer order not preserved: %+v", list[1].Payers)
	}

	got.Amount = 9000
	got.Description = "Dinner (edited)"
	got.Payers = []models.Share{share(ids[1], 9000)}
	got.Participants = []models.Share{share(ids[0], 4500), share(ids[2], 4500)}
	if err := store.UpdateExpense(ctx, got); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	updated, err := store.GetExpense(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetExpense after update: %v", err)
	}
	if updated.Amount != 9000 || updated.Description != "Dinner (edited)" || len(updated.Participants) != 2 {
		t.Fatalf("update not persisted: %+v", updated)
	}
	if updated.Payers[0].User.ID() != ids[1] {
		t.Fatalf("payers not replaced: %+v", updated.Payers)
	}

	missing := &models.Expense{ID: uuid.NewString(), GroupID: g.ID, Amount: 1}
	if err := store.UpdateExpense(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("UpdateExpense missing: expected ErrNotFound, got %v", err)
	}

	if err := store.DeleteExpense(ctx, second.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if _, err := store.GetExpense(ctx, second.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetExpense deleted: expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteExpense(ctx, second.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("DeleteExpense twice: expected ErrNotFound, got %v", err)
	}

	empty, err := store.ListExpensesByGroup(ctx, uuid.NewString())
	if err != nil || len(empty) != 0 {
		t.Fatalf("ListExpensesByGroup unknown = %v, %v", empty, err)
	}
}

func runSettlements(t *testing.T, store storage.Store) {
	ctx := context.Background()
	ids := seedUsers(t, store, "Alice", "Bob", "Carol")
	g := seedGroup(t, store, ids)

	batch := uuid.NewString()
	settlements := []*models.Settlement{
		{BatchID: batch, GroupID: g.ID, FromUserID: ids[1], ToUserID: ids[0], Amount: 4000, Position: 0, CreatedBy: ids[1], CreatedAt: 500},
		{BatchID: batch, GroupID: g.ID, FromUserID: ids[2], ToUserID: ids[0], Amount: 4000, Position: 1, CreatedBy: ids[1], CreatedAt: 500, Note: "cash"},
	}
	if err := store.AppendSettlements(ctx, settlements); err != nil {
		t.Fatalf("AppendSettlements: %v", err)
	}
	for _, s := range settlements {
		if s.ID == "" {
			t.Fatalf("expected settlement ID to be assigned")
		}
	}

	list, err := store.ListSettlementsByGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListSettlementsByGroup: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 settlements, got %d", len(list))
	}
	if list[0].Position != 0 || list[1].Position != 1 || list[1].Note != "cash" || list[0].Note != "" {
		t.Fatalf("unexpected settlements: %+v %+v", list[0], list[1])
	}
	if list[0].Amount != 4000 || list[0].FromUserID != ids[1] || list[0].ToUserID != ids[0] || list[0].BatchID != batch {
		t.Fatalf("unexpected first settlement: %+v", list[0])
	}

	if err := store.AppendSettlements(ctx, nil); err != nil {
		t.Fatalf("AppendSettlements(nil): %v", err)
	}

	// A failing row aborts the whole batch.
	dup := list[0].ID
	bad := []*models.Settlement{
		{BatchID: uuid.NewString(), GroupID: g.ID, FromUserID: ids[2], ToUserID: ids[1], Amount: 100, Position: 0, CreatedBy: ids[2], CreatedAt: 600},
		{ID: dup, BatchID: uuid.NewString(), GroupID: g.ID, FromUserID: ids[2], ToUserID: ids[1], Amount: 100, Position: 1, CreatedBy: ids[2], CreatedAt: 600},
	}
	if err := store.AppendSettlements(ctx, bad); err == nil {
		t.Fatalf("expected duplicate settlement id to fail the batch")
	}
	list, err = store.ListSettlementsByGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListSettlementsByGroup after failed batch: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("failed batch was partially written: %d settlements", len(list))
	}

	orphan := []*models.Settlement{
		{BatchID: uuid.NewString(), GroupID: uuid.NewString(), FromUserID: ids[0], ToUserID: ids[1], Amount: 1, CreatedBy: ids[0]},
	}
	if err := store.AppendSettlements(ctx, orphan); err == nil {
		t.Fatalf("expected unknown group to fail")
	}
}

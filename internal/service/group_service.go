package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
	pb "github.com/mmynk/settleup/pkg/api"
)

// GroupService implements the Connect GroupService
type GroupService struct {
	store  storage.Store
	ledger *ledger.Service
}

// NewGroupService creates a new GroupService with the given storage backend.
func NewGroupService(store storage.Store, l *ledger.Service) *GroupService {
	return &GroupService{store: store, ledger: l}
}

// CreateUser registers a user that can later join groups.
func (s *GroupService) CreateUser(ctx context.Context, req *connect.Request[pb.CreateUserRequest]) (*connect.Response[pb.CreateUserResponse], error) {
	if _, err := callerID(ctx); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, invalidArgument("name required")
	}

	if req.Msg.ID != "" {
		if _, err := s.store.GetUser(ctx, req.Msg.ID); err == nil {
			return nil, connect.NewError(connect.CodeAlreadyExists, fmt.Errorf("user %q already exists", req.Msg.ID))
		}
	}

	user := &models.User{
		ID:    req.Msg.ID,
		Name:  name,
		Email: req.Msg.Email,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		slog.ErrorContext(ctx, "CreateUser failed", "error", err)
		return nil, toConnectError(err)
	}

	slog.InfoContext(ctx, "User created", "user_id", user.ID)

	return connect.NewResponse(&pb.CreateUserResponse{User: toPBUser(user)}), nil
}

// UpdateUser changes the caller's own name and email.
func (s *GroupService) UpdateUser(ctx context.Context, req *connect.Request[pb.UpdateUserRequest]) (*connect.Response[pb.UpdateUserResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, invalidArgument("name required")
	}

	user := &models.User{ID: userID, Name: name, Email: req.Msg.Email}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		slog.ErrorContext(ctx, "UpdateUser failed", "user_id", userID, "error", err)
		return nil, toConnectError(err)
	}

	updated, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	slog.InfoContext(ctx, "User updated", "user_id", userID)

	return connect.NewResponse(&pb.UpdateUserResponse{User: toPBUser(updated)}), nil
}

// CreateGroup creates a new group. The caller always becomes a member.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[pb.CreateGroupRequest]) (*connect.Response[pb.CreateGroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "CreateGroup request received",
		"name", req.Msg.Name,
		"members_count", len(req.Msg.Members),
	)

	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, invalidArgument("name required")
	}

	members := slices.Clone(req.Msg.Members)
	if !slices.Contains(members, userID) {
		members = append(members, userID)
	}
	if err := s.checkUsersExist(ctx, members); err != nil {
		return nil, err
	}

	group := &models.Group{
		Name:        name,
		Description: req.Msg.Description,
		Members:     members,
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		slog.ErrorContext(ctx, "CreateGroup failed", "error", err)
		return nil, toConnectError(err)
	}

	created, err := s.store.GetGroup(ctx, group.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to fetch created group", "group_id", group.ID, "error", err)
		return nil, toConnectError(err)
	}

	slog.InfoContext(ctx, "Group created", "group_id", created.ID)

	return connect.NewResponse(&pb.CreateGroupResponse{Group: toPBGroup(created)}), nil
}

// GetGroup retrieves a group and its members.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[pb.GetGroupRequest]) (*connect.Response[pb.GetGroupResponse], error) {
	group, _, err := requireMember(ctx, s.store, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}

	users, err := s.store.GetUsersByIDs(ctx, group.Members)
	if err != nil {
		slog.ErrorContext(ctx, "GetGroup failed", "group_id", group.ID, "error", err)
		return nil, toConnectError(err)
	}

	resp := &pb.GetGroupResponse{Group: toPBGroup(group), Users: make([]pb.User, 0, len(group.Members))}
	for _, id := range group.Members {
		if u, ok := users[id]; ok {
			resp.Users = append(resp.Users, toPBUser(u))
		}
	}

	return connect.NewResponse(resp), nil
}

// UpdateGroup renames a group and replaces its description.
func (s *GroupService) UpdateGroup(ctx context.Context, req *connect.Request[pb.UpdateGroupRequest]) (*connect.Response[pb.UpdateGroupResponse], error) {
	group, _, err := requireMember(ctx, s.store, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, invalidArgument("name required")
	}

	group.Name = name
	group.Description = req.Msg.Description
	if err := s.store.UpdateGroup(ctx, group); err != nil {
		slog.ErrorContext(ctx, "UpdateGroup failed", "group_id", group.ID, "error", err)
		return nil, toConnectError(err)
	}

	updated, err := s.store.GetGroup(ctx, group.ID)
	if err != nil {
		return nil, toConnectError(err)
	}

	slog.InfoContext(ctx, "Group updated", "group_id", group.ID)

	return connect.NewResponse(&pb.UpdateGroupResponse{Group: toPBGroup(updated)}), nil
}

// ListGroups returns the caller's groups, oldest first, each with the
// caller's net balance in it. A group whose ledger cannot be computed fails
// the whole call.
func (s *GroupService) ListGroups(ctx context.Context, req *connect.Request[pb.ListGroupsRequest]) (*connect.Response[pb.ListGroupsResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	groups, err := s.store.ListGroupsByUser(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "ListGroups failed", "error", err)
		return nil, toConnectError(err)
	}

	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	balances, err := s.ledger.GetBalancesForGroups(ctx, ids)
	if err != nil {
		slog.ErrorContext(ctx, "ListGroups balances failed", "error", err)
		return nil, toConnectError(err)
	}

	resp := &pb.ListGroupsResponse{Groups: make([]pb.GroupSummary, len(groups))}
	for i, g := range groups {
		net := money.Zero
		for _, b := range balances[g.ID] {
			if b.UserID == userID {
				net = b.Net
				break
			}
		}
		resp.Groups[i] = pb.GroupSummary{
			Group:    toPBGroup(g),
			NetMinor: net.Int64(),
			Net:      net.String(),
		}
	}

	slog.InfoContext(ctx, "ListGroups successful", "groups_count", len(groups))

	return connect.NewResponse(resp), nil
}

// AddMembers adds existing users to a group. Current members are ignored.
func (s *GroupService) AddMembers(ctx context.Context, req *connect.Request[pb.AddMembersRequest]) (*connect.Response[pb.AddMembersResponse], error) {
	group, _, err := requireMember(ctx, s.store, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}
	if len(req.Msg.UserIDs) == 0 {
		return nil, invalidArgument("user_ids required")
	}
	if err := s.checkUsersExist(ctx, req.Msg.UserIDs); err != nil {
		return nil, err
	}

	if err := s.store.AddGroupMembers(ctx, group.ID, req.Msg.UserIDs); err != nil {
		slog.ErrorContext(ctx, "AddMembers failed", "group_id", group.ID, "error", err)
		return nil, toConnectError(err)
	}

	updated, err := s.store.GetGroup(ctx, group.ID)
	if err != nil {
		return nil, toConnectError(err)
	}

	slog.InfoContext(ctx, "Members added", "group_id", group.ID, "members_count", len(updated.Members))

	return connect.NewResponse(&pb.AddMembersResponse{Group: toPBGroup(updated)}), nil
}

// RemoveMember removes a member whose balance is zero and who appears in no
// expense or settlement of the group.
func (s *GroupService) RemoveMember(ctx context.Context, req *connect.Request[pb.RemoveMemberRequest]) (*connect.Response[pb.RemoveMemberResponse], error) {
	group, _, err := requireMember(ctx, s.store, req.Msg.GroupID)
	if err != nil {
		return nil, err
	}
	if req.Msg.UserID == "" {
		return nil, invalidArgument("user_id required")
	}

	if err := s.ledger.CheckMemberRemovable(ctx, group.ID, req.Msg.UserID); err != nil {
		slog.WarnContext(ctx, "RemoveMember rejected", "group_id", group.ID, "user_id", req.Msg.UserID, "error", err)
		return nil, toConnectError(err)
	}
	if err := s.store.RemoveGroupMember(ctx, group.ID, req.Msg.UserID); err != nil {
		slog.ErrorContext(ctx, "RemoveMember failed", "group_id", group.ID, "error", err)
		return nil, toConnectError(err)
	}

	updated, err := s.store.GetGroup(ctx, group.ID)
	if err != nil {
		return nil, toConnectError(err)
	}

	slog.InfoContext(ctx, "Member removed", "group_id", group.ID, "user_id", req.Msg.UserID)

	return connect.NewResponse(&pb.RemoveMemberResponse{Group: toPBGroup(updated)}), nil
}

func (s *GroupService) checkUsersExist(ctx context.Context, ids []string) error {
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return toConnectError(err)
	}
	for _, id := range ids {
		if _, ok := users[id]; !ok {
			return invalidArgument("unknown user %q", id)
		}
	}
	return nil
}

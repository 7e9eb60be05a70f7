package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/storage"
	pb "github.com/mmynk/settleup/pkg/api"
)

// LedgerService implements the Connect LedgerService.
type LedgerService struct {
	ledger *ledger.Service
	groups storage.GroupStore
}

// NewLedgerService creates a LedgerService on top of the ledger.
func NewLedgerService(l *ledger.Service, groups storage.GroupStore) *LedgerService {
	return &LedgerService{ledger: l, groups: groups}
}

// GetBalances returns every member's net balance.
func (s *LedgerService) GetBalances(ctx context.Context, req *connect.Request[pb.GetBalancesRequest]) (*connect.Response[pb.GetBalancesResponse], error) {
	groupID := req.Msg.GroupID
	if _, _, err := requireMember(ctx, s.groups, groupID); err != nil {
		return nil, err
	}

	balances, err := s.ledger.GetBalances(ctx, groupID)
	if err != nil {
		slog.ErrorContext(ctx, "GetBalances failed", "group_id", groupID, "error", err)
		return nil, toConnectError(err)
	}

	slog.InfoContext(ctx, "GetBalances successful", "group_id", groupID, "members_count", len(balances))

	return connect.NewResponse(&pb.GetBalancesResponse{
		GroupID:  groupID,
		Balances: ToPBBalances(balances),
	}), nil
}

// GetSettlementPlan returns the transfers that would settle the group.
func (s *LedgerService) GetSettlementPlan(ctx context.Context, req *connect.Request[pb.GetSettlementPlanRequest]) (*connect.Response[pb.GetSettlementPlanResponse], error) {
	groupID := req.Msg.GroupID
	if _, _, err := requireMember(ctx, s.groups, groupID); err != nil {
		return nil, err
	}

	plan, err := s.ledger.GetSettlementPlan(ctx, groupID)
	if err != nil {
		slog.ErrorContext(ctx, "GetSettlementPlan failed", "group_id", groupID, "error", err)
		return nil, toConnectError(err)
	}

	slog.InfoContext(ctx, "GetSettlementPlan successful", "group_id", groupID, "transfers_count", len(plan))

	return connect.NewResponse(&pb.GetSettlementPlanResponse{
		GroupID:   groupID,
		Transfers: ToPBTransfers(plan),
	}), nil
}

// SettleUp commits the group's current plan as one batch of settlements.
func (s *LedgerService) SettleUp(ctx context.Context, req *connect.Request[pb.SettleUpRequest]) (*connect.Response[pb.SettleUpResponse], error) {
	groupID := req.Msg.GroupID
	_, userID, err := requireMember(ctx, s.groups, groupID)
	if err != nil {
		return nil, err
	}

	committed, err := s.ledger.CommitSettlement(ctx, groupID, userID, req.Msg.Note)
	if err != nil {
		slog.ErrorContext(ctx, "SettleUp failed", "group_id", groupID, "error", err)
		return nil, toConnectError(err)
	}

	resp := &pb.SettleUpResponse{Settlements: ToPBSettlements(committed)}
	if len(committed) > 0 {
		resp.BatchID = committed[0].BatchID
	}

	slog.InfoContext(ctx, "SettleUp successful", "group_id", groupID, "batch_id", resp.BatchID, "transfers_count", len(committed))

	return connect.NewResponse(resp), nil
}

// ListSettlements returns the group's settlement history.
func (s *LedgerService) ListSettlements(ctx context.Context, req *connect.Request[pb.ListSettlementsRequest]) (*connect.Response[pb.ListSettlementsResponse], error) {
	groupID := req.Msg.GroupID
	if _, _, err := requireMember(ctx, s.groups, groupID); err != nil {
		return nil, err
	}

	settlements, err := s.ledger.ListSettlements(ctx, groupID)
	if err != nil {
		slog.ErrorContext(ctx, "ListSettlements failed", "group_id", groupID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&pb.ListSettlementsResponse{
		Settlements: ToPBSettlements(settlements),
	}), nil
}

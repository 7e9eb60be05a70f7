package service

import (
	"context"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/middleware"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/storage"
)

// callerID returns the authenticated user or an Unauthenticated error.
func callerID(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errAuthRequired)
	}
	return userID, nil
}

// requireMember loads the group and checks that the caller belongs to it.
func requireMember(ctx context.Context, groups storage.GroupStore, groupID string) (*models.Group, string, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, "", err
	}
	if groupID == "" {
		return nil, "", invalidArgument("group_id required")
	}

	group, err := groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, "", toConnectError(err)
	}
	if !group.HasMember(userID) {
		return nil, "", connect.NewError(connect.CodePermissionDenied, errNotMember)
	}
	return group, userID, nil
}

package service

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

var (
	errAuthRequired = errors.New("authentication required")
	errNotMember    = errors.New("you must be a member of this group")
)

// ErrorCode maps a domain error to the Connect code clients see.
func ErrorCode(err error) connect.Code {
	var (
		connectErr   *connect.Error
		validation   *calculator.ValidationError
		overflow     *money.ArithmeticOverflowError
		inconsistent *calculator.InconsistentBalanceError
	)
	switch {
	case errors.As(err, &connectErr):
		return connectErr.Code()
	case errors.As(err, &validation),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrInvalidSplit):
		return connect.CodeInvalidArgument
	case errors.As(err, &overflow), errors.As(err, &inconsistent):
		return connect.CodeInternal
	case errors.Is(err, storage.ErrNotFound):
		return connect.CodeNotFound
	case errors.Is(err, ledger.ErrMemberHasBalance), errors.Is(err, ledger.ErrMemberHasHistory):
		return connect.CodeFailedPrecondition
	default:
		return connect.CodeInternal
	}
}

// toConnectError wraps err with its mapped code. Errors that are already
// *connect.Error pass through unchanged.
func toConnectError(err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}
	return connect.NewError(ErrorCode(err), err)
}

func invalidArgument(format string, args ...any) error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf(format, args...))
}

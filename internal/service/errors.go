package service

import (
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/receiptsplit/internal/allocation"
	"github.com/mmynk/receiptsplit/internal/resolver"
	"github.com/mmynk/receiptsplit/internal/storage"
)

var (
	errMissingSessionID = errors.New("session_id is required")
	errMissingLink      = errors.New("link is required")
)

// toConnectError maps domain errors to Connect codes. Unknown errors are
// logged and reported as internal without leaking details.
func toConnectError(op string, err error) error {
	var (
		validationErr *allocation.ValidationError
		invalidOpErr  *allocation.InvalidOperationError
		resolveErr    *resolver.Error
	)
	switch {
	case errors.As(err, &validationErr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &invalidOpErr):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.As(err, &resolveErr):
		code := connect.CodeInternal
		switch resolveErr.Category {
		case resolver.CategoryNetwork, resolver.CategoryServer:
			code = connect.CodeUnavailable
		}
		slog.Warn("Receipt resolution failed", "op", op, "category", resolveErr.Category, "error", err)
		return connect.NewError(code, errors.New(resolveErr.UserMessage()))
	}

	slog.Error("Operation failed", "op", op, "error", err)
	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}

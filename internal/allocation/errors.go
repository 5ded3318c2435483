package allocation

import (
	"errors"
	"fmt"

	"github.com/mmynk/receiptsplit/internal/models"
)

var (
	ErrParticipantCount = errors.New("participant count out of range")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrUnknownMode      = errors.New("unknown split mode")
	ErrInvalidOperation = errors.New("operation not allowed in current split mode")
)

// ValidationError reports rejected input. The engine state is unchanged.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// InvalidOperationError reports an operation that the current split mode
// does not support, such as setting an amount directly in itemized mode.
// The engine state is unchanged.
type InvalidOperationError struct {
	Op   string
	Mode models.SplitMode
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("%s: not allowed in %s mode", e.Op, e.Mode)
}

func (e *InvalidOperationError) Unwrap() error { return ErrInvalidOperation }

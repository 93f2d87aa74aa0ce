package rewards

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the rewards service.
var (
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrNoFreeVotes          = errors.New("no free votes available")
	ErrInsufficientCoins    = errors.New("insufficient coins")
	ErrAlreadyRedeemed      = errors.New("already redeemed")
	ErrPromotionExpired     = errors.New("promotion expired")
	ErrInvalidPromotion     = errors.New("invalid promotion")
	ErrConfiguration        = errors.New("configuration error")
	ErrQuotaExhausted       = errors.New("quota exhausted")
	ErrUnknownWheel         = errors.New("unknown wheel")
	ErrUnknownAvatar        = errors.New("unknown avatar")
	ErrInvalidAccountID     = errors.New("invalid account id")
	ErrInvalidIdentity      = errors.New("invalid identity")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidCategory      = errors.New("invalid entry category")
	ErrInvalidDirection     = errors.New("invalid direction")
	ErrInvalidVoteMethod    = errors.New("invalid vote method")
	ErrInvalidVoteScope     = errors.New("invalid vote scope")
	ErrInvalidVote          = errors.New("invalid vote")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

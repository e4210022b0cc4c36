package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrAccountNotFound        = errors.New("account not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrSenderNotFound         = errors.New("sender account not found")
	ErrReceiverNotFound       = errors.New("receiver not found")
	ErrSelfTransfer           = errors.New("cannot transfer to your own account")
	ErrInvalidMemo            = errors.New("invalid memo")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrVersionConflict        = errors.New("optimistic lock conflict")
	ErrDuplicateTransactionID = errors.New("duplicate transaction id")
	ErrTransferFailed         = errors.New("transfer failed")
	ErrDuplicateIdentity      = errors.New("account already exists")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrInvalidOTP             = errors.New("invalid or expired verification code")
	ErrFaceNotVerified        = errors.New("face verification failed")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrUnauthorized           = errors.New("unauthorized")
)

// InsufficientFundsError reports the balance that was available when a debit was refused.
type InsufficientFundsError struct {
	Available Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available balance %s", e.Available)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// NewInsufficientFunds builds an ErrInsufficientFunds carrying the available balance.
func NewInsufficientFunds(available Money) error {
	return &InsufficientFundsError{Available: available}
}

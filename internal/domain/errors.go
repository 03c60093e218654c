package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountNotActive      = errors.New("account not active")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrSameAccountTransfer   = errors.New("cannot transfer to same account")
	ErrMissingDestination    = errors.New("transfer requires a destination account")
	ErrUnexpectedDestination = errors.New("destination account is only valid for transfers")
	ErrInvalidTransition     = errors.New("invalid transaction status transition")
	ErrNotReversible         = errors.New("transaction type is not reversible")
	ErrAccountExists         = errors.New("account number already registered")
)

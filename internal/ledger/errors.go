package ledger

import "errors"

var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrNoPosition           = errors.New("no position")
	ErrOrderNotFound        = errors.New("order not found")
	ErrPersistence          = errors.New("ledger persistence failed")
)

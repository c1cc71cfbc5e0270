package repositories

import "errors"

var (
	ErrNotFound          = errors.New("record not found")
	ErrStockConstraint   = errors.New("stock change violates inventory constraints")
	ErrHoldNotFound      = errors.New("no held reservation for order")
	ErrStaleVersion      = errors.New("record was modified concurrently")
	ErrInsufficientFunds = errors.New("wallet balance insufficient")
	ErrDuplicateKey      = errors.New("duplicate key")
)

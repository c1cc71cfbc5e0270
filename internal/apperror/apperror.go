// Package apperror defines the error taxonomy surfaced by the cart, inventory and
// order services. Callers classify errors with errors.Is against the Err* kinds.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid state")
	ErrInsufficientResource = errors.New("insufficient resource")
	ErrValidation           = errors.New("validation failed")
	ErrConflict             = errors.New("concurrent modification")
)

// Error is a classified error carrying a user-facing message and optional
// structured detail (a StockShortage, a field map, ...).
type Error struct {
	Kind    error
	Message string
	Detail  any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches structured context and returns the same error.
func (e *Error) WithDetail(detail any) *Error {
	e.Detail = detail
	return e
}

// Wrap attaches an underlying cause and returns the same error.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return newf(ErrNotFound, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return newf(ErrInvalidState, format, args...)
}

func Insufficient(format string, args ...any) *Error {
	return newf(ErrInsufficientResource, format, args...)
}

func Validation(format string, args ...any) *Error {
	return newf(ErrValidation, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(ErrConflict, format, args...)
}

// StockShortage describes which item could not be covered and by how much.
type StockShortage struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Name      string `json:"name,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// FundsShortage describes a wallet that cannot cover a debit.
type FundsShortage struct {
	OwnerID   string `json:"ownerId"`
	Requested int64  `json:"requested"`
	Balance   int64  `json:"balance"`
}

// DetailOf returns the structured detail of the first *Error in err's chain.
func DetailOf(err error) any {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Detail
	}
	return nil
}

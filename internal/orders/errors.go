package orders

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrConflict          = errors.New("conflict")

	// ErrDuplicateIdentifier is returned by a Store when the order number or
	// receipt code of a new order is already taken.
	ErrDuplicateIdentifier = errors.New("duplicate order identifier")
)

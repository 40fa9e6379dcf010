package errors

import "errors"

var (
	ErrNotFound = errors.New("rental not found")

	ErrInvalidID = errors.New("invalid rental ID format")

	ErrDuplicateReference = errors.New("rental reference already exists")

	// ErrStatusChanged means a lifecycle write matched no document in the
	// expected prior status: another request transitioned the rental first.
	ErrStatusChanged = errors.New("rental status changed concurrently")
)

package shared

import "errors"

var (
	// ErrNotFound indicates the referenced record does not exist or is not
	// visible to the caller's tenant.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates a cross-tenant or wrong-role access attempt.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState indicates an operation against a record in a state
	// that does not permit it, e.g. paying a settled credit.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAlreadyExists indicates a uniqueness violation.
	ErrAlreadyExists = errors.New("already exists")
)

package interfaces

import "errors"

// Engine error taxonomy. Every failure returned by the engine wraps exactly one
// of these, so callers can branch with errors.Is.
var (
	// ErrUnauthorized is returned when the caller lacks the required privilege.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when a referenced certificate or signer is absent.
	ErrNotFound = errors.New("not found")

	// ErrAlreadySigned is returned when a signer approves the same certificate twice.
	ErrAlreadySigned = errors.New("already signed")

	// ErrAlreadyExists is returned when a signer is added twice under the strict policy.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument is returned for zero identities and thresholds below one.
	ErrInvalidArgument = errors.New("invalid argument")
)

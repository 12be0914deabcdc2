package registry

import "errors"

var (
	// ErrNotFound is returned when no matching registry entry exists.
	ErrNotFound = errors.New("registry entry not found")

	// ErrDuplicateKey is returned when a public key hash is already
	// claimed by a different psu-token.
	ErrDuplicateKey = errors.New("public key already bound to another identity")
)

// Package registry provides the persistence abstraction over the public key
// registry: one row per bound key, looked up by identity hash, public key
// hash, or psu-token.
package registry

import "time"

// Entry is one row of the public key registry.
type Entry struct {
	// IDHash is the one-way hash of the individual's identifier. The raw
	// identifier is never stored.
	IDHash string

	// AuthFactor is the authentication-factor type this key is bound to,
	// e.g. "WLA". An identity may hold independent bindings per factor.
	AuthFactor string

	// PsuToken is the partner-specific user token, the durable pseudonymous
	// identifier provided by the identity backend.
	PsuToken string

	// PublicKey is the bound public key as a serialized JWK.
	PublicKey string

	// PublicKeyHash is the hash of PublicKey, used for duplicate detection.
	PublicKeyHash string

	// Certificate is the X.509 certificate (PEM) wrapping the public key.
	Certificate string

	// WalletBindingID is the opaque identifier for this binding
	// relationship, preserved across key rotations for the same
	// (PsuToken, AuthFactor) pair.
	WalletBindingID string

	// Thumbprint is the SHA-256 thumbprint of the serialized public key.
	Thumbprint string

	// CreatedAt is when the entry was first stored.
	CreatedAt time.Time

	// ExpiresAt is derived from the certificate's notAfter, never chosen
	// independently.
	ExpiresAt time.Time
}

// Active reports whether the entry is unexpired at the given instant.
func (e Entry) Active(now time.Time) bool {
	return e.ExpiresAt.After(now)
}

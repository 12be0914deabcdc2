package registry

import (
	"context"
	"time"
)

// Store defines the persistence contract for the public key registry.
//
// Bind executes the whole upsert as one transaction: the duplicate-key gate
// runs before any write, and a race between two concurrent binds of the same
// physical key under different psu-tokens resolves to exactly one winner.
type Store interface {
	// Bind persists a key binding. If an active entry already exists for
	// (entry.PsuToken, entry.AuthFactor), its WalletBindingID is reused
	// and the key material is rotated in place; otherwise
	// candidateBindingID becomes the entry's WalletBindingID. Returns the
	// stored entry. Fails with ErrDuplicateKey when entry.PublicKeyHash is
	// claimed by a different psu-token.
	Bind(ctx context.Context, entry Entry, candidateBindingID string) (Entry, error)

	// FindActiveByIDHash returns all unexpired entries for the identity
	// hash whose auth factor is in authFactors.
	FindActiveByIDHash(ctx context.Context, idHash string, authFactors []string, now time.Time) ([]Entry, error)

	// FindLatestByPsuTokenAndAuthFactor returns the most recent entry for
	// the pair, expired or not, or ErrNotFound.
	FindLatestByPsuTokenAndAuthFactor(ctx context.Context, psuToken, authFactor string) (Entry, error)

	// GetPublicKey returns the serialized public key stored for the
	// psu-token and thumbprint, or ErrNotFound.
	GetPublicKey(ctx context.Context, psuToken, thumbprint string) (string, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

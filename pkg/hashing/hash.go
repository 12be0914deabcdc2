// Package hashing implements the one-way hashing primitives used by the
// binding engine: identifier and public-key hashes for indexable storage,
// wallet-binding-id minting, and access-token hashes for DPoP ath checks.
package hashing

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/crypto/sha3"
)

// DefaultSaltLength is the salt size in bytes used for wallet-binding-id
// minting when no length is configured.
const DefaultSaltLength = 16

// Identity returns the SHA3-256 hash of an individual identifier,
// base64url-encoded without padding. Deterministic and unsalted so the hash
// can serve as an equality lookup key; it is never reversed.
func Identity(individualID string) string {
	return sum256([]byte(individualID))
}

// PublicKey returns the SHA3-256 hash of a canonical JWK serialization,
// base64url-encoded without padding. Used for duplicate detection.
func PublicKey(jwkJSON string) string {
	return sum256([]byte(jwkJSON))
}

// NewWalletBindingID mints an opaque binding identifier by hashing the
// psu-token together with a fresh random salt. The salt is discarded, so the
// result is a one-way commitment: callers must persist the id, it cannot be
// regenerated.
func NewWalletBindingID(psuToken string, saltLength int) (string, error) {
	if saltLength <= 0 {
		saltLength = DefaultSaltLength
	}
	salt, err := GenerateSalt(saltLength)
	if err != nil {
		return "", err
	}

	h := sha3.New256()
	h.Write([]byte(psuToken))
	h.Write(salt)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

// GenerateSalt returns n cryptographically random bytes.
func GenerateSalt(n int) ([]byte, error) {
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of a JWK,
// base64url-encoded without padding. Stored alongside the registry entry so
// a bound key can be looked up by the jkt value a DPoP proof carries.
func Thumbprint(jwkJSON string) (string, error) {
	key, err := jwk.ParseKey([]byte(jwkJSON))
	if err != nil {
		return "", fmt.Errorf("parsing JWK: %w", err)
	}
	tp, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("computing thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

// AccessTokenHash returns base64url(SHA-256(token)) without padding, the
// value a DPoP proof must carry in its ath claim to bind itself to the
// access token presented alongside it.
func AccessTokenHash(accessToken string) string {
	digest := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

func sum256(data []byte) string {
	digest := sha3.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

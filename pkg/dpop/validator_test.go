package dpop

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosip/esignet-binding/pkg/cache"
	apperrors "github.com/mosip/esignet-binding/pkg/errors"
	"github.com/mosip/esignet-binding/pkg/hashing"
)

const proofHTU = "https://idp.example.com/v1/binding/wallet-binding"

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid proof", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		proof := signProof(t, key, proofClaims(key, "POST", proofHTU), nil)

		result, err := v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU))
		require.NoError(t, err)
		assert.Equal(t, key.thumbprint, result.Thumbprint)
		assert.NotEmpty(t, result.JTI)
	})

	t.Run("request query string ignored", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		proof := signProof(t, key, proofClaims(key, "POST", proofHTU), nil)

		_, err := v.Validate(context.Background(), proof, "POST",
			mustParseURL(t, proofHTU+"?state=abc#frag"))
		require.NoError(t, err)
	})

	t.Run("host case insensitive", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		proof := signProof(t, key, proofClaims(key, "POST", "https://IDP.Example.COM/v1/binding/wallet-binding"), nil)

		_, err := v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU))
		require.NoError(t, err)
	})

	t.Run("htm mismatch", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		proof := signProof(t, key, proofClaims(key, "POST", proofHTU), nil)

		_, err := v.Validate(context.Background(), proof, "GET", mustParseURL(t, proofHTU))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopProof))
	})

	t.Run("htu path mismatch", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		proof := signProof(t, key, proofClaims(key, "POST", proofHTU), nil)

		_, err := v.Validate(context.Background(), proof, "POST",
			mustParseURL(t, "https://idp.example.com/v1/binding/binding-otp"))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopProof))
	})

	t.Run("stale iat", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		claims := proofClaims(key, "POST", proofHTU)
		claims["iat"] = time.Now().Add(-10 * time.Minute).Unix()
		proof := signProof(t, key, claims, nil)

		_, err := v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopProof))
	})

	t.Run("future iat beyond skew", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		claims := proofClaims(key, "POST", proofHTU)
		claims["iat"] = time.Now().Add(10 * time.Minute).Unix()
		proof := signProof(t, key, claims, nil)

		_, err := v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopProof))
	})

	t.Run("missing cnf claim", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		claims := proofClaims(key, "POST", proofHTU)
		delete(claims, "cnf")
		proof := signProof(t, key, claims, nil)

		_, err := v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopProof))
	})

	t.Run("wrong typ header", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		proof := signProof(t, key, proofClaims(key, "POST", proofHTU), map[string]any{"typ": "JWT"})

		_, err := v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopHeader))
	})

	t.Run("missing jwk header", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		proof := signProof(t, key, proofClaims(key, "POST", proofHTU), map[string]any{"jwk": nil})

		_, err := v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopHeader))
	})

	t.Run("private key material rejected", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		leaky := map[string]any{}
		for k, val := range key.publicJWK {
			leaky[k] = val
		}
		leaky["d"] = "private-scalar"
		proof := signProof(t, key, proofClaims(key, "POST", proofHTU), map[string]any{"jwk": leaky})

		_, err := v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopHeader))
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		token := jwt.NewWithClaims(jwt.SigningMethodNone, proofClaims(key, "POST", proofHTU))
		token.Header["typ"] = proofType
		token.Header["jwk"] = key.publicJWK
		unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Validate(context.Background(), unsigned, "POST", mustParseURL(t, proofHTU))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopHeader))
	})

	t.Run("replayed jti rejected", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		proof := signProof(t, key, proofClaims(key, "POST", proofHTU), nil)

		_, err := v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU))
		require.NoError(t, err)
		_, err = v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopProof))
	})

	t.Run("concurrent replay lets exactly one pass", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		proof := signProof(t, key, proofClaims(key, "POST", proofHTU), nil)

		var passed atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU)); err == nil {
					passed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), passed.Load())
	})
}

func TestValidateForResource(t *testing.T) {
	t.Parallel()

	const accessToken = "access-token-value"
	resourceHTU := "https://idp.example.com/v1/userinfo"

	newResourceClaims := func(key proofKey) jwt.MapClaims {
		claims := proofClaims(key, "GET", resourceHTU)
		claims["ath"] = hashing.AccessTokenHash(accessToken)
		return claims
	}

	t.Run("valid token binding", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		proof := signProof(t, key, newResourceClaims(key), nil)

		result, err := v.ValidateForResource(context.Background(), proof, "GET",
			mustParseURL(t, resourceHTU), accessToken)
		require.NoError(t, err)
		assert.Equal(t, key.thumbprint, result.Thumbprint)
	})

	t.Run("jkt mismatch", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		claims := newResourceClaims(key)
		claims["cnf"] = map[string]any{"jkt": "some-other-thumbprint"}
		proof := signProof(t, key, claims, nil)

		_, err := v.ValidateForResource(context.Background(), proof, "GET",
			mustParseURL(t, resourceHTU), accessToken)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopProof))
	})

	t.Run("missing ath", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		proof := signProof(t, key, proofClaims(key, "GET", resourceHTU), nil)

		_, err := v.ValidateForResource(context.Background(), proof, "GET",
			mustParseURL(t, resourceHTU), accessToken)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopProof))
	})

	t.Run("ath over different token", func(t *testing.T) {
		t.Parallel()
		key := newProofKey(t)
		v := newTestValidator(t, time.Minute)
		claims := newResourceClaims(key)
		claims["ath"] = hashing.AccessTokenHash("a-different-token")
		proof := signProof(t, key, claims, nil)

		_, err := v.ValidateForResource(context.Background(), proof, "GET",
			mustParseURL(t, resourceHTU), accessToken)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopProof))
	})
}

func TestReplayCacheTTLFloor(t *testing.T) {
	t.Parallel()

	r := NewReplayCache(nil, time.Second, time.Minute)
	assert.Equal(t, time.Minute, r.ttl)
}

func TestNewValidatorDefaults(t *testing.T) {
	t.Parallel()

	v := NewValidator(NewReplayCache(nil, 0, 0), 0, nil)
	assert.Equal(t, DefaultClockSkew, v.skew)
	assert.Equal(t, defaultAlgs, v.algs)
}

func TestConfiguredAlgs(t *testing.T) {
	t.Parallel()

	key := newProofKey(t)
	mem := cache.NewMemoryClient()
	t.Cleanup(func() { _ = mem.Close() })

	t.Run("proof signed with excluded alg rejected", func(t *testing.T) {
		t.Parallel()
		v := NewValidator(NewReplayCache(mem, 0, time.Minute), time.Minute, []string{"RS256"})
		proof := signProof(t, key, proofClaims(key, "POST", proofHTU), nil)

		_, err := v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDpopHeader))
	})

	t.Run("proof signed with configured alg accepted", func(t *testing.T) {
		t.Parallel()
		v := NewValidator(NewReplayCache(mem, 0, time.Minute), time.Minute, []string{"ES256"})
		proof := signProof(t, key, proofClaims(key, "POST", proofHTU), nil)

		_, err := v.Validate(context.Background(), proof, "POST", mustParseURL(t, proofHTU))
		assert.NoError(t, err)
	})
}

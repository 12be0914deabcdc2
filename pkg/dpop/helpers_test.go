package dpop

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/require"

	"github.com/mosip/esignet-binding/pkg/cache"
)

// proofKey bundles a signing key with its public JWK header form and
// thumbprint.
type proofKey struct {
	private    *ecdsa.PrivateKey
	publicJWK  map[string]any
	thumbprint string
}

func newProofKey(t *testing.T) proofKey {
	t.Helper()
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	key, err := jwk.Import(private.Public())
	require.NoError(t, err)

	data, err := json.Marshal(key)
	require.NoError(t, err)
	var publicJWK map[string]any
	require.NoError(t, json.Unmarshal(data, &publicJWK))

	tp, err := key.Thumbprint(crypto.SHA256)
	require.NoError(t, err)

	return proofKey{
		private:    private,
		publicJWK:  publicJWK,
		thumbprint: base64.RawURLEncoding.EncodeToString(tp),
	}
}

func proofClaims(key proofKey, method, htu string) jwt.MapClaims {
	return jwt.MapClaims{
		"htm": method,
		"htu": htu,
		"iat": time.Now().Unix(),
		"jti": uuid.NewString(),
		"cnf": map[string]any{"jkt": key.thumbprint},
	}
}

// signProof signs a DPoP proof. Header overrides replace defaults; a nil
// override value removes the header.
func signProof(t *testing.T, key proofKey, claims jwt.MapClaims, headerOverrides map[string]any) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["typ"] = proofType
	token.Header["jwk"] = key.publicJWK
	for k, v := range headerOverrides {
		if v == nil {
			delete(token.Header, k)
			continue
		}
		token.Header[k] = v
	}
	signed, err := token.SignedString(key.private)
	require.NoError(t, err)
	return signed
}

func newTestValidator(t *testing.T, skew time.Duration) *Validator {
	t.Helper()
	mem := cache.NewMemoryClient()
	t.Cleanup(func() { _ = mem.Close() })
	return NewValidator(NewReplayCache(mem, 0, skew), skew, nil)
}

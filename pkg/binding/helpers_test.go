package binding

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/mosip/esignet-binding/pkg/registry"
)

// newTestCertificate generates an RSA key pair and a self-signed certificate
// valid for the given duration.
func newTestCertificate(t *testing.T, validity time.Duration) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "binding-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(validity),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return key, string(certPEM)
}

// rsaJWK renders an RSA public key as a public JWK map.
func rsaJWK(pub *rsa.PublicKey) map[string]any {
	return map[string]any{
		"kty": "RSA",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		"alg": "RS256",
		"use": "sig",
	}
}

// signWLAToken signs a WLA JWT with extra header values merged in.
func signWLAToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims, headers map[string]any) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	for k, v := range headers {
		token.Header[k] = v
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func wlaClaims(individualID, audience string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub": individualID,
		"aud": audience,
		"iss": "test-wallet",
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
}

type fakeAuthenticator struct {
	sendOtpResult *SendOtpResult
	sendOtpErr    error
	bindKeyResult *KeyBindingResult
	bindKeyErr    error
	formats       map[string][]string

	sendOtpCalls int
	bindKeyCalls int
}

func newFakeAuthenticator() *fakeAuthenticator {
	return &fakeAuthenticator{
		formats: map[string][]string{AuthFactorWLA: {FormatJWT}},
	}
}

func (f *fakeAuthenticator) SendOtp(_ context.Context, _ string, _ []string, _ map[string]string) (*SendOtpResult, error) {
	f.sendOtpCalls++
	return f.sendOtpResult, f.sendOtpErr
}

func (f *fakeAuthenticator) BindKey(_ context.Context, _, _ string, _ []AuthChallenge, _ map[string]any, _ map[string]string) (*KeyBindingResult, error) {
	f.bindKeyCalls++
	return f.bindKeyResult, f.bindKeyErr
}

func (f *fakeAuthenticator) SupportedFormats(authFactorType string) []string {
	return f.formats[authFactorType]
}

type fakeStore struct {
	bindErr error
	entries []registry.Entry

	bound         []registry.Entry
	lastCandidate string
}

func (f *fakeStore) Bind(_ context.Context, entry registry.Entry, candidateBindingID string) (registry.Entry, error) {
	if f.bindErr != nil {
		return registry.Entry{}, f.bindErr
	}
	entry.WalletBindingID = candidateBindingID
	f.bound = append(f.bound, entry)
	f.lastCandidate = candidateBindingID
	return entry, nil
}

func (f *fakeStore) FindActiveByIDHash(_ context.Context, idHash string, authFactors []string, now time.Time) ([]registry.Entry, error) {
	var out []registry.Entry
	for _, e := range f.entries {
		if e.IDHash != idHash || !e.Active(now) {
			continue
		}
		for _, factor := range authFactors {
			if e.AuthFactor == factor {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) FindLatestByPsuTokenAndAuthFactor(_ context.Context, psuToken, authFactor string) (registry.Entry, error) {
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.PsuToken == psuToken && e.AuthFactor == authFactor {
			return e, nil
		}
	}
	return registry.Entry{}, registry.ErrNotFound
}

func (f *fakeStore) GetPublicKey(_ context.Context, psuToken, thumbprint string) (string, error) {
	for _, e := range f.entries {
		if e.PsuToken == psuToken && e.Thumbprint == thumbprint {
			return e.PublicKey, nil
		}
	}
	return "", registry.ErrNotFound
}

func (f *fakeStore) Ping(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                 { return nil }

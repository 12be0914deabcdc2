package dpop

import (
	"context"
	"crypto"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	apperrors "github.com/mosip/esignet-binding/pkg/errors"
	"github.com/mosip/esignet-binding/pkg/hashing"
)

const (
	// HeaderName is the HTTP header carrying the proof JWT.
	HeaderName = "DPoP"

	proofType = "dpop+jwt"
)

// defaultAlgs are the proof signing algorithms accepted unless configured
// otherwise.
var defaultAlgs = []string{"ES256", "RS256"}

// requiredProofClaims must all be present in a proof.
var requiredProofClaims = []string{"htm", "htu", "iat", "jti", "cnf"}

// Proof is a successfully validated DPoP proof.
type Proof struct {
	// JTI is the proof's unique id, already marked consumed.
	JTI string
	// Thumbprint is the base64url SHA-256 JWK thumbprint of the embedded
	// proof key.
	Thumbprint string
}

// Validator checks DPoP proofs against the request they accompany.
type Validator struct {
	replay *ReplayCache
	skew   time.Duration
	algs   []string

	now func() time.Time
}

// NewValidator creates a proof validator with the given clock-skew
// tolerance and accepted signing algorithms. An empty algs slice falls
// back to ES256 and RS256.
func NewValidator(replay *ReplayCache, clockSkew time.Duration, algs []string) *Validator {
	if clockSkew <= 0 {
		clockSkew = DefaultClockSkew
	}
	if len(algs) == 0 {
		algs = defaultAlgs
	}
	return &Validator{replay: replay, skew: clockSkew, algs: algs, now: time.Now}
}

// Validate checks a proof against the request method and URL.
func (v *Validator) Validate(ctx context.Context, proof, method string, requestURL *url.URL) (*Proof, error) {
	return v.validate(ctx, proof, method, requestURL, "", false)
}

// ValidateForResource additionally binds the proof to the presented access
// token: cnf.jkt must match the proof key thumbprint and ath must hash the
// token.
func (v *Validator) ValidateForResource(ctx context.Context, proof, method string, requestURL *url.URL, accessToken string) (*Proof, error) {
	return v.validate(ctx, proof, method, requestURL, accessToken, true)
}

func (v *Validator) validate(ctx context.Context, proof, method string, requestURL *url.URL, accessToken string, resource bool) (*Proof, error) {
	var proofKey jwk.Key
	parser := jwt.NewParser(jwt.WithValidMethods(v.algs))
	token, err := parser.Parse(proof, func(t *jwt.Token) (any, error) {
		key, err := embeddedKey(t)
		if err != nil {
			return nil, err
		}
		proofKey = key
		var rawKey any
		if err := jwk.Export(key, &rawKey); err != nil {
			return nil, fmt.Errorf("failed to export proof key: %w", err)
		}
		return rawKey, nil
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidDpopHeader, "proof verification failed", err)
	}

	typ, _ := token.Header["typ"].(string)
	if !strings.EqualFold(typ, proofType) {
		return nil, apperrors.New(apperrors.ErrInvalidDpopHeader, "typ header is not dpop+jwt", nil)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.NewWithCode(apperrors.ErrInvalidDpopProof)
	}
	for _, claim := range requiredProofClaims {
		if _, ok := claims[claim]; !ok {
			return nil, apperrors.New(apperrors.ErrInvalidDpopProof,
				fmt.Sprintf("missing required claim: %s", claim), nil)
		}
	}

	htm, _ := claims["htm"].(string)
	if !strings.EqualFold(htm, method) {
		return nil, apperrors.New(apperrors.ErrInvalidDpopProof, "htm does not match request method", nil)
	}

	htu, _ := claims["htu"].(string)
	if err := matchHTU(htu, requestURL); err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidDpopProof, "htu does not match request URL", err)
	}

	issuedAt, err := claims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return nil, apperrors.New(apperrors.ErrInvalidDpopProof, "invalid iat claim", err)
	}
	if drift := v.now().Sub(issuedAt.Time); drift > v.skew || drift < -v.skew {
		return nil, apperrors.New(apperrors.ErrInvalidDpopProof, "iat outside the accepted window", nil)
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil, apperrors.New(apperrors.ErrInvalidDpopProof, "empty jti claim", nil)
	}
	replayed, err := v.replay.CheckAndMark(ctx, jti)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidDpopProof, "replay check failed", err)
	}
	if replayed {
		return nil, apperrors.New(apperrors.ErrInvalidDpopProof, "proof replay detected", nil)
	}

	thumbprint, err := keyThumbprint(proofKey)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidDpopHeader, "failed to compute key thumbprint", err)
	}

	if resource {
		if err := validateResourceBinding(claims, thumbprint, accessToken); err != nil {
			return nil, err
		}
	}

	return &Proof{JTI: jti, Thumbprint: thumbprint}, nil
}

// embeddedKey extracts the public-only JWK from the proof header.
func embeddedKey(t *jwt.Token) (jwk.Key, error) {
	rawJWK, ok := t.Header["jwk"]
	if !ok {
		return nil, fmt.Errorf("missing jwk header")
	}
	jwkMap, ok := rawJWK.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("jwk header is not an object")
	}
	if _, hasPrivate := jwkMap["d"]; hasPrivate {
		return nil, fmt.Errorf("jwk header carries private key material")
	}
	data, err := json.Marshal(jwkMap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jwk header: %w", err)
	}
	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jwk header: %w", err)
	}
	return key, nil
}

func keyThumbprint(key jwk.Key) (string, error) {
	tp, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

// validateResourceBinding checks cnf.jkt against the proof key and ath
// against the presented access token.
func validateResourceBinding(claims jwt.MapClaims, thumbprint, accessToken string) error {
	cnf, ok := claims["cnf"].(map[string]any)
	if !ok {
		return apperrors.New(apperrors.ErrInvalidDpopProof, "cnf claim is not an object", nil)
	}
	jkt, _ := cnf["jkt"].(string)
	if jkt != thumbprint {
		return apperrors.New(apperrors.ErrInvalidDpopProof, "cnf.jkt does not match proof key", nil)
	}
	ath, _ := claims["ath"].(string)
	if ath == "" {
		return apperrors.New(apperrors.ErrInvalidDpopProof, "missing ath claim", nil)
	}
	if ath != hashing.AccessTokenHash(accessToken) {
		return apperrors.New(apperrors.ErrInvalidDpopProof, "ath does not match access token", nil)
	}
	return nil
}

// matchHTU compares a proof htu against the request URL after canonical
// normalization of both sides.
func matchHTU(htu string, requestURL *url.URL) error {
	claimed, err := url.Parse(htu)
	if err != nil {
		return fmt.Errorf("invalid htu: %w", err)
	}
	if normalizeURL(claimed) != normalizeURL(requestURL) {
		return fmt.Errorf("htu %q does not match request URL", htu)
	}
	return nil
}

// normalizeURL lower-cases scheme and host and strips query, fragment, and
// user info. The path is preserved verbatim.
func normalizeURL(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	c.RawQuery = ""
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil
	return c.String()
}

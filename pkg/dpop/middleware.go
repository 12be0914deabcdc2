package dpop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/mosip/esignet-binding/pkg/errors"
	"github.com/mosip/esignet-binding/pkg/logger"
)

// challengeAlgs is advertised in WWW-Authenticate challenges.
const challengeAlgs = "ES256 PS256"

type contextKey struct{}

var proofContextKey contextKey

// ProofFromContext returns the validated proof attached by the middleware,
// if any. Handlers that require DPoP must check this marker since requests
// without a proof header pass through unvalidated.
func ProofFromContext(ctx context.Context) (*Proof, bool) {
	proof, ok := ctx.Value(proofContextKey).(*Proof)
	return proof, ok
}

// Middleware returns an HTTP middleware validating DPoP proofs. Paths with
// a prefix in resourcePaths are treated as resource endpoints: their proofs
// must also bind to the presented access token, and a DPoP-bound token
// cannot be presented there without a proof.
func Middleware(validator *Validator, resourcePaths []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resource := isResourcePath(r.URL.Path, resourcePaths)
			scheme, accessToken := authorizationToken(r)

			proofs := r.Header.Values(HeaderName)
			if len(proofs) != 1 {
				// A token bound at issuance must keep proving possession.
				if resource && strings.EqualFold(scheme, "DPoP") {
					writeChallenge(w, apperrors.ErrInvalidDpopProof, "DPoP-bound token requires a proof header")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			var (
				proof *Proof
				err   error
			)
			if resource {
				proof, err = validator.ValidateForResource(r.Context(), proofs[0], r.Method, requestURL(r), accessToken)
			} else {
				proof, err = validator.Validate(r.Context(), proofs[0], r.Method, requestURL(r))
			}
			if err != nil {
				logger.Debugf("DPoP validation failed for %s %s: %v", r.Method, r.URL.Path, err)
				code := apperrors.CodeOf(err)
				if code == "" {
					code = apperrors.ErrInvalidDpopProof
				}
				writeChallenge(w, code, "DPoP proof validation failed")
				return
			}

			ctx := context.WithValue(r.Context(), proofContextKey, proof)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isResourcePath(path string, resourcePaths []string) bool {
	for _, prefix := range resourcePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// authorizationToken splits the Authorization header into scheme and token.
func authorizationToken(r *http.Request) (string, string) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found {
		return "", ""
	}
	return scheme, strings.TrimSpace(token)
}

// requestURL reconstructs the absolute URL of a server-side request.
func requestURL(r *http.Request) *url.URL {
	u := *r.URL
	u.Host = r.Host
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		u.Scheme = forwarded
	}
	return &u
}

func writeChallenge(w http.ResponseWriter, code, description string) {
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf("DPoP error=%q, error_description=%q, algs=%q", code, description, challengeAlgs))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]string{{"errorCode": code, "errorMessage": description}},
	})
}

package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mosip/esignet-binding/pkg/dpop"
	apperrors "github.com/mosip/esignet-binding/pkg/errors"
	"github.com/mosip/esignet-binding/pkg/registry"
)

// WalletRouter serves resource endpoints that require a validated DPoP
// proof bound to the presented access token.
func WalletRouter(store registry.Store) http.Handler {
	routes := &walletRoutes{store: store}
	r := chi.NewRouter()
	r.Get("/public-key", routes.getPublicKey)
	return r
}

type walletRoutes struct {
	store registry.Store
}

// getPublicKey returns the bound public key matching the proof's key
// thumbprint. The proof marker is mandatory here: a request that skipped
// DPoP validation is rejected.
func (wr *walletRoutes) getPublicKey(w http.ResponseWriter, r *http.Request) {
	proof, ok := dpop.ProofFromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", `DPoP error="INVALID_DPOP_PROOF", error_description="DPoP proof required", algs="ES256 PS256"`)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	psuToken := r.URL.Query().Get("psuToken")
	if psuToken == "" {
		writeError(w, apperrors.New(apperrors.ErrInvalidRequest, "psuToken query parameter is required", nil))
		return
	}

	publicKey, err := wr.store.GetPublicKey(r.Context(), psuToken, proof.Thumbprint)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, apperrors.NewWithCode(apperrors.ErrKeyBindingNotFound))
			return
		}
		writeError(w, err)
		return
	}
	writeResponse(w, map[string]any{"publicKey": json.RawMessage(publicKey)})
}

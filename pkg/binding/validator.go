package binding

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/mosip/esignet-binding/pkg/errors"
	"github.com/mosip/esignet-binding/pkg/hashing"
	"github.com/mosip/esignet-binding/pkg/logger"
	"github.com/mosip/esignet-binding/pkg/registry"
)

// thumbprintHeader is the required certificate thumbprint header of a WLA
// token.
const thumbprintHeader = "x5t#S256"

// requiredWLAClaims must all be present in a WLA token.
var requiredWLAClaims = []string{"sub", "aud", "exp", "iss", "iat"}

// Validator authenticates individuals against their previously bound keys.
type Validator struct {
	store      registry.Store
	audienceID string

	now func() time.Time
}

// NewValidator creates a binding validator. audienceID is the value every
// WLA token's aud claim must carry.
func NewValidator(store registry.Store, audienceID string) *Validator {
	return &Validator{store: store, audienceID: audienceID, now: time.Now}
}

// ValidateBinding verifies every challenge against the active binding
// registry entries of the individual. All challenges must verify for the
// validation to succeed.
func (v *Validator) ValidateBinding(ctx context.Context, individualID, transactionID string, challenges []AuthChallenge) (BindingAuthResult, error) {
	if len(challenges) == 0 {
		return BindingAuthResult{}, apperrors.NewWithCode(apperrors.ErrInvalidChallenge)
	}

	factors := distinctAuthFactors(challenges)
	entries, err := v.store.FindActiveByIDHash(ctx, hashing.Identity(individualID), factors, v.now())
	if err != nil {
		return BindingAuthResult{}, fmt.Errorf("failed to load binding entries: %w", err)
	}
	if len(entries) == 0 {
		return BindingAuthResult{}, apperrors.NewWithCode(apperrors.ErrKeyBindingNotFound)
	}
	if len(entries) < len(factors) {
		return BindingAuthResult{}, apperrors.NewWithCode(apperrors.ErrUnboundAuthFactor)
	}

	for _, challenge := range challenges {
		entry, ok := entryForFactor(entries, challenge.AuthFactorType)
		if !ok {
			return BindingAuthResult{}, apperrors.NewWithCode(apperrors.ErrUnboundAuthFactor)
		}
		if err := v.validateChallenge(individualID, challenge, entry); err != nil {
			logger.Debugf("Challenge validation failed for factor %s: %v", challenge.AuthFactorType, err)
			return BindingAuthResult{}, err
		}
	}

	return BindingAuthResult{IndividualID: individualID, TransactionID: transactionID}, nil
}

// validateChallenge dispatches on the auth-factor type and format.
func (v *Validator) validateChallenge(individualID string, challenge AuthChallenge, entry registry.Entry) error {
	switch challenge.AuthFactorType {
	case AuthFactorWLA:
		switch challenge.Format {
		case FormatJWT:
			return v.validateWLAToken(individualID, challenge.Challenge, entry)
		default:
			return apperrors.New(apperrors.ErrUnknownWLAFormat,
				fmt.Sprintf("unknown WLA challenge format: %s", challenge.Format), nil)
		}
	default:
		return apperrors.New(apperrors.ErrInvalidChallenge,
			fmt.Sprintf("no verification for auth factor: %s", challenge.AuthFactorType), nil)
	}
}

// validateWLAToken verifies a wallet local authentication JWT against the
// bound certificate's public key.
func (v *Validator) validateWLAToken(individualID, wlaToken string, entry registry.Entry) error {
	cert, err := parseCertificate(entry.Certificate)
	if err != nil {
		return apperrors.New(apperrors.ErrInvalidWLAToken, "unusable binding certificate", err)
	}
	publicKey, err := rsaPublicKeyFromCertificate(cert)
	if err != nil {
		return apperrors.New(apperrors.ErrInvalidWLAToken, "unusable binding certificate", err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
	)
	token, err := parser.Parse(wlaToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Header[thumbprintHeader]; !ok {
			return nil, apperrors.NewWithCode(apperrors.ErrThumbprintHeaderMissing)
		}
		return publicKey, nil
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrThumbprintHeaderMissing) {
			return apperrors.NewWithCode(apperrors.ErrThumbprintHeaderMissing)
		}
		return apperrors.New(apperrors.ErrInvalidWLAToken, "WLA token verification failed", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return apperrors.NewWithCode(apperrors.ErrInvalidWLAToken)
	}
	for _, claim := range requiredWLAClaims {
		if _, ok := claims[claim]; !ok {
			return apperrors.New(apperrors.ErrInvalidWLAToken,
				fmt.Sprintf("missing required claim: %s", claim), nil)
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub != individualID {
		return apperrors.New(apperrors.ErrInvalidWLAToken, "subject does not match individual", nil)
	}
	aud, err := claims.GetAudience()
	if err != nil || !slices.Contains(aud, v.audienceID) {
		return apperrors.New(apperrors.ErrInvalidWLAToken, "audience mismatch", nil)
	}
	return nil
}

func distinctAuthFactors(challenges []AuthChallenge) []string {
	var factors []string
	for _, c := range challenges {
		if !slices.Contains(factors, c.AuthFactorType) {
			factors = append(factors, c.AuthFactorType)
		}
	}
	return factors
}

func entryForFactor(entries []registry.Entry, authFactor string) (registry.Entry, bool) {
	for _, e := range entries {
		if e.AuthFactor == authFactor {
			return e, true
		}
	}
	return registry.Entry{}, false
}

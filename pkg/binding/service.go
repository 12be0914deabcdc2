package binding

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/mosip/esignet-binding/pkg/errors"
	"github.com/mosip/esignet-binding/pkg/hashing"
	"github.com/mosip/esignet-binding/pkg/logger"
	"github.com/mosip/esignet-binding/pkg/registry"
)

// expireTimeFormat is the UTC timestamp layout used in binding responses.
const expireTimeFormat = "2006-01-02T15:04:05.000Z"

// ServiceOptions tunes the key binding ceremony.
type ServiceOptions struct {
	// EncryptBindingID controls whether the wallet binding id is returned
	// as a JWE to the bound key instead of plaintext.
	EncryptBindingID bool
	// SaltLength is the number of random salt bytes mixed into new wallet
	// binding ids.
	SaltLength int
	// CertExpiryOverride, when positive, replaces the certificate notAfter
	// as the binding lifetime.
	CertExpiryOverride time.Duration
	// AuthFactorTypes are the factors a new bind ceremony may complete
	// with. Defaults to WLA.
	AuthFactorTypes []string
}

// Service runs the key binding ceremony: OTP dispatch, challenge
// verification through the authenticator, and registry upsert.
type Service struct {
	authenticator Authenticator
	store         registry.Store
	transactions  *TransactionStore
	opts          ServiceOptions

	now func() time.Time
}

// NewService creates a key binding service.
func NewService(authenticator Authenticator, store registry.Store, transactions *TransactionStore, opts ServiceOptions) *Service {
	if opts.SaltLength <= 0 {
		opts.SaltLength = hashing.DefaultSaltLength
	}
	if len(opts.AuthFactorTypes) == 0 {
		opts.AuthFactorTypes = []string{AuthFactorWLA}
	}
	return &Service{
		authenticator: authenticator,
		store:         store,
		transactions:  transactions,
		opts:          opts,
		now:           time.Now,
	}
}

// SendBindingOtp dispatches an OTP and opens a bind transaction for the
// individual.
func (s *Service) SendBindingOtp(ctx context.Context, req BindingOtpRequest, headers map[string]string) (BindingOtpResponse, error) {
	result, err := s.authenticator.SendOtp(ctx, req.IndividualID, req.OtpChannels, headers)
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return BindingOtpResponse{}, err
		}
		return BindingOtpResponse{}, apperrors.New(apperrors.ErrSendOtpFailed, "otp dispatch failed", err)
	}
	if result == nil {
		return BindingOtpResponse{}, apperrors.NewWithCode(apperrors.ErrSendOtpFailed)
	}

	txn := Transaction{
		IndividualID:      req.IndividualID,
		AuthTransactionID: uuid.NewString(),
		AuthFactorTypes:   s.opts.AuthFactorTypes,
	}
	if err := s.transactions.Create(ctx, txn); err != nil {
		return BindingOtpResponse{}, apperrors.New(apperrors.ErrSendOtpFailed, "failed to open bind transaction", err)
	}
	logger.Debugw("Opened bind transaction", "authTransactionId", txn.AuthTransactionID)

	return BindingOtpResponse{
		MaskedEmail:  result.MaskedEmail,
		MaskedMobile: result.MaskedMobile,
	}, nil
}

// BindWallet verifies the challenge list with the authenticator and binds
// the submitted public key to the individual. The pending transaction, when
// present, is consumed whether binding succeeds or fails.
func (s *Service) BindWallet(ctx context.Context, req WalletBindingRequest, headers map[string]string) (WalletBindingResponse, error) {
	txn, txnErr := s.transactions.Get(ctx, req.IndividualID)
	if txnErr == nil {
		defer func() {
			if err := s.transactions.Delete(ctx, req.IndividualID); err != nil {
				logger.Warnf("Failed to discard bind transaction: %v", err)
			}
		}()
		if !slices.Contains(txn.AuthFactorTypes, req.AuthFactorType) {
			return WalletBindingResponse{}, apperrors.NewWithCode(apperrors.ErrInvalidAuthFactorTypeOrFormat)
		}
	} else if !errors.Is(txnErr, ErrTransactionNotFound) {
		return WalletBindingResponse{}, apperrors.New(apperrors.ErrKeyBindingFailed, "failed to load bind transaction", txnErr)
	}

	if err := s.validateFormats(req); err != nil {
		return WalletBindingResponse{}, err
	}

	jwkJSON, err := json.Marshal(req.PublicKey)
	if err != nil {
		return WalletBindingResponse{}, apperrors.New(apperrors.ErrInvalidPublicKey, "failed to encode public key", err)
	}

	result, err := s.authenticator.BindKey(ctx, req.IndividualID, req.AuthFactorType, req.ChallengeList, req.PublicKey, headers)
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return WalletBindingResponse{}, err
		}
		return WalletBindingResponse{}, apperrors.New(apperrors.ErrKeyBindingFailed, "key binding failed", err)
	}
	if result == nil || result.Certificate == "" || result.PartnerSpecificUserToken == "" {
		return WalletBindingResponse{}, apperrors.NewWithCode(apperrors.ErrKeyBindingFailed)
	}

	cert, err := parseCertificate(result.Certificate)
	if err != nil {
		return WalletBindingResponse{}, apperrors.New(apperrors.ErrInvalidCertificate, "invalid binding certificate", err)
	}
	expiresAt := cert.NotAfter
	if s.opts.CertExpiryOverride > 0 {
		expiresAt = s.now().Add(s.opts.CertExpiryOverride)
	}

	candidateBindingID, err := hashing.NewWalletBindingID(result.PartnerSpecificUserToken, s.opts.SaltLength)
	if err != nil {
		return WalletBindingResponse{}, apperrors.New(apperrors.ErrKeyBindingFailed, "failed to derive binding id", err)
	}
	thumbprint, err := hashing.Thumbprint(string(jwkJSON))
	if err != nil {
		return WalletBindingResponse{}, apperrors.New(apperrors.ErrInvalidPublicKey, "failed to compute key thumbprint", err)
	}

	entry := registry.Entry{
		IDHash:        hashing.Identity(req.IndividualID),
		AuthFactor:    req.AuthFactorType,
		PsuToken:      result.PartnerSpecificUserToken,
		PublicKey:     string(jwkJSON),
		PublicKeyHash: hashing.PublicKey(string(jwkJSON)),
		Certificate:   result.Certificate,
		Thumbprint:    thumbprint,
		CreatedAt:     s.now().UTC(),
		ExpiresAt:     expiresAt,
	}
	stored, err := s.store.Bind(ctx, entry, candidateBindingID)
	if err != nil {
		if errors.Is(err, registry.ErrDuplicateKey) {
			return WalletBindingResponse{}, apperrors.NewWithCode(apperrors.ErrDuplicatePublicKey)
		}
		return WalletBindingResponse{}, apperrors.New(apperrors.ErrKeyBindingFailed, "failed to store key binding", err)
	}

	bindingID := stored.WalletBindingID
	if s.opts.EncryptBindingID {
		bindingID, err = EncryptBindingID(stored.WalletBindingID, req.PublicKey)
		if err != nil {
			return WalletBindingResponse{}, err
		}
	}

	logger.Infof("Bound %s key for identity hash %s", req.AuthFactorType, entry.IDHash)
	return WalletBindingResponse{
		WalletBindingID: bindingID,
		Certificate:     result.Certificate,
		ExpireDateTime:  expiresAt.UTC().Format(expireTimeFormat),
	}, nil
}

// validateFormats checks every challenge against the authenticator's
// supported (authFactorType, format) pairs.
func (s *Service) validateFormats(req WalletBindingRequest) error {
	if len(req.ChallengeList) == 0 {
		return apperrors.NewWithCode(apperrors.ErrInvalidChallengeFormat)
	}
	for _, challenge := range req.ChallengeList {
		if !slices.Contains(s.authenticator.SupportedFormats(challenge.AuthFactorType), challenge.Format) {
			return apperrors.NewWithCode(apperrors.ErrInvalidAuthFactorTypeOrFormat)
		}
	}
	return nil
}

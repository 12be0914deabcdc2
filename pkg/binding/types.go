// Package binding implements the key binding ceremony and the validation of
// previously bound keys: send-OTP, wallet binding, WLA challenge
// verification, and binding-id response encryption.
package binding

import "errors"

// AuthFactorWLA is the wallet-based local authentication factor, the one
// auth-factor type with a verification path in this engine.
const AuthFactorWLA = "WLA"

// FormatJWT is the one challenge format defined for the WLA auth factor.
const FormatJWT = "jwt"

// ErrTransactionNotFound is returned when no binding transaction exists for
// the individual.
var ErrTransactionNotFound = errors.New("binding transaction not found")

// AuthChallenge is one proof presented by the caller, dispatched on
// AuthFactorType and Format.
type AuthChallenge struct {
	AuthFactorType string `json:"authFactorType"`
	Format         string `json:"format"`
	Challenge      string `json:"challenge"`
}

// SendOtpResult is the authenticator's answer to an OTP dispatch.
type SendOtpResult struct {
	MaskedEmail  string `json:"maskedEmail"`
	MaskedMobile string `json:"maskedMobile"`
}

// KeyBindingResult proves the authenticator verified the challenges and
// issued a certificate over the submitted public key.
type KeyBindingResult struct {
	Certificate              string `json:"certificate"`
	PartnerSpecificUserToken string `json:"partnerSpecificUserToken"`
}

// BindingOtpRequest asks for an OTP to start the bind ceremony.
type BindingOtpRequest struct {
	IndividualID string   `json:"individualId"`
	OtpChannels  []string `json:"otpChannels"`
}

// BindingOtpResponse carries the masked delivery addresses.
type BindingOtpResponse struct {
	MaskedEmail  string `json:"maskedEmail"`
	MaskedMobile string `json:"maskedMobile"`
}

// WalletBindingRequest completes the bind ceremony with a solved challenge
// list and the public key to bind. AuthFactorType names the factor being
// bound, not the factor of the challenges.
type WalletBindingRequest struct {
	IndividualID   string          `json:"individualId"`
	AuthFactorType string          `json:"authFactorType"`
	PublicKey      map[string]any  `json:"publicKey"`
	ChallengeList  []AuthChallenge `json:"challengeList"`
}

// WalletBindingResponse returns the (optionally encrypted) binding id, the
// issued certificate, and the binding expiry.
type WalletBindingResponse struct {
	WalletBindingID string `json:"walletBindingId"`
	Certificate     string `json:"certificate"`
	ExpireDateTime  string `json:"expireDateTime"`
}

// BindingAuthResult is the successful outcome of validateBinding.
type BindingAuthResult struct {
	IndividualID  string `json:"individualId"`
	TransactionID string `json:"transactionId"`
}

// Transaction is the ephemeral state of one bind ceremony, created on
// send-OTP and consumed by wallet binding.
type Transaction struct {
	IndividualID string `json:"individualId"`
	// AuthTransactionID is generated internally; it is never a
	// client-supplied id.
	AuthTransactionID string   `json:"authTransactionId"`
	AuthFactorTypes   []string `json:"authFactorTypes"`
}

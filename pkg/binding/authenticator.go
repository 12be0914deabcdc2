package binding

import "context"

// Authenticator verifies individuals and certifies keys on behalf of the
// identity system. It is the trust anchor of the bind ceremony: this engine
// never inspects OTP values or challenge correctness itself.
type Authenticator interface {
	// SendOtp dispatches an OTP over the requested channels. A nil result
	// with a nil error is treated as a dispatch failure by the caller.
	SendOtp(ctx context.Context, individualID string, otpChannels []string, headers map[string]string) (*SendOtpResult, error)

	// BindKey verifies the challenge list and, on success, issues a
	// certificate over the submitted public key together with the
	// partner-specific user token.
	BindKey(ctx context.Context, individualID, authFactorType string, challenges []AuthChallenge, publicKey map[string]any, headers map[string]string) (*KeyBindingResult, error)

	// SupportedFormats reports the challenge formats accepted for an
	// auth-factor type. An empty slice means the factor is unsupported.
	SupportedFormats(authFactorType string) []string
}

package binding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	apperrors "github.com/mosip/esignet-binding/pkg/errors"
	"github.com/mosip/esignet-binding/pkg/logger"
)

const (
	sendOtpPath = "/binding/binding-otp"
	bindKeyPath = "/binding/wallet-binding"

	defaultAuthenticatorTimeout = 10 * time.Second
	maxSendOtpAttempts          = 3
)

// RemoteAuthenticator talks to an external authenticator service over HTTP.
// OTP dispatch is retried on transport and server errors; key binding is a
// verification outcome and is never retried.
type RemoteAuthenticator struct {
	baseURL string
	client  *http.Client
	formats map[string][]string
}

// NewRemoteAuthenticator creates an authenticator client for the given base
// URL. supportedFormats maps auth-factor type to the challenge formats the
// authenticator accepts; when nil, WLA/jwt is assumed.
func NewRemoteAuthenticator(baseURL string, timeout time.Duration, supportedFormats map[string][]string) *RemoteAuthenticator {
	if timeout <= 0 {
		timeout = defaultAuthenticatorTimeout
	}
	if supportedFormats == nil {
		supportedFormats = map[string][]string{AuthFactorWLA: {FormatJWT}}
	}
	return &RemoteAuthenticator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		formats: supportedFormats,
	}
}

// SupportedFormats implements Authenticator.
func (r *RemoteAuthenticator) SupportedFormats(authFactorType string) []string {
	return r.formats[authFactorType]
}

type authenticatorError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type sendOtpEnvelope struct {
	Response *SendOtpResult       `json:"response"`
	Errors   []authenticatorError `json:"errors"`
}

type bindKeyEnvelope struct {
	Response *KeyBindingResult    `json:"response"`
	Errors   []authenticatorError `json:"errors"`
}

// SendOtp implements Authenticator.
func (r *RemoteAuthenticator) SendOtp(ctx context.Context, individualID string, otpChannels []string, headers map[string]string) (*SendOtpResult, error) {
	body := map[string]any{
		"individualId": individualID,
		"otpChannels":  otpChannels,
	}
	operation := func() (*sendOtpEnvelope, error) {
		var envelope sendOtpEnvelope
		if err := r.post(ctx, sendOtpPath, body, headers, &envelope); err != nil {
			return nil, err
		}
		return &envelope, nil
	}
	envelope, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxSendOtpAttempts))
	if err != nil {
		return nil, err
	}
	if len(envelope.Errors) > 0 {
		e := envelope.Errors[0]
		return nil, apperrors.New(e.ErrorCode, e.ErrorMessage, nil)
	}
	return envelope.Response, nil
}

// BindKey implements Authenticator.
func (r *RemoteAuthenticator) BindKey(ctx context.Context, individualID, authFactorType string, challenges []AuthChallenge, publicKey map[string]any, headers map[string]string) (*KeyBindingResult, error) {
	body := map[string]any{
		"individualId":   individualID,
		"authFactorType": authFactorType,
		"challengeList":  challenges,
		"publicKey":      publicKey,
	}
	var envelope bindKeyEnvelope
	if err := r.post(ctx, bindKeyPath, body, headers, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Errors) > 0 {
		e := envelope.Errors[0]
		return nil, apperrors.New(e.ErrorCode, e.ErrorMessage, nil)
	}
	return envelope.Response, nil
}

// post sends a JSON request and decodes a JSON response. Client errors and
// structured authenticator errors are permanent; transport and server errors
// are retryable.
func (r *RemoteAuthenticator) post(ctx context.Context, path string, body any, headers map[string]string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("authenticator request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		logger.Warnf("Authenticator %s returned status %d", path, resp.StatusCode)
		return fmt.Errorf("authenticator returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return backoff.Permanent(fmt.Errorf("authenticator returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read authenticator response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode authenticator response: %w", err))
	}
	return nil
}

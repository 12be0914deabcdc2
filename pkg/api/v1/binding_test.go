package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosip/esignet-binding/pkg/binding"
	"github.com/mosip/esignet-binding/pkg/cache"
	apperrors "github.com/mosip/esignet-binding/pkg/errors"
	"github.com/mosip/esignet-binding/pkg/registry"
)

type stubAuthenticator struct {
	sendOtpResult *binding.SendOtpResult
	sendOtpErr    error
}

func (s *stubAuthenticator) SendOtp(_ context.Context, _ string, _ []string, _ map[string]string) (*binding.SendOtpResult, error) {
	return s.sendOtpResult, s.sendOtpErr
}

func (s *stubAuthenticator) BindKey(_ context.Context, _, _ string, _ []binding.AuthChallenge, _ map[string]any, _ map[string]string) (*binding.KeyBindingResult, error) {
	return nil, apperrors.NewWithCode(apperrors.ErrKeyBindingFailed)
}

func (s *stubAuthenticator) SupportedFormats(authFactorType string) []string {
	if authFactorType == binding.AuthFactorWLA {
		return []string{binding.FormatJWT}
	}
	return nil
}

type stubStore struct {
	registry.Store // panics on anything not overridden

	entries []registry.Entry
	pingErr error
}

func (s *stubStore) FindActiveByIDHash(_ context.Context, _ string, _ []string, _ time.Time) ([]registry.Entry, error) {
	return s.entries, nil
}

func (s *stubStore) GetPublicKey(_ context.Context, _, _ string) (string, error) {
	return "", registry.ErrNotFound
}

func (s *stubStore) Ping(_ context.Context) error { return s.pingErr }

func newBindingHandler(t *testing.T, auth binding.Authenticator, store registry.Store) http.Handler {
	t.Helper()
	mem := cache.NewMemoryClient()
	t.Cleanup(func() { _ = mem.Close() })
	transactions := binding.NewTransactionStore(mem, time.Minute)
	service := binding.NewService(auth, store, transactions, binding.ServiceOptions{})
	validator := binding.NewValidator(store, "test-audience")
	return BindingRouter(service, validator)
}

func postWrapped(t *testing.T, handler http.Handler, path string, request any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"requestTime": time.Now().UTC().Format(responseTimeFormat),
		"request":     request,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseWrapper {
	t.Helper()
	var envelope responseWrapper
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestSendBindingOtpEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("success envelope", func(t *testing.T) {
		t.Parallel()
		auth := &stubAuthenticator{sendOtpResult: &binding.SendOtpResult{MaskedEmail: "t**@mail.com"}}
		handler := newBindingHandler(t, auth, &stubStore{})

		rec := postWrapped(t, handler, "/binding-otp", binding.BindingOtpRequest{
			IndividualID: "individual-1",
			OtpChannels:  []string{"EMAIL"},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		envelope := decodeEnvelope(t, rec)
		assert.Empty(t, envelope.Errors)
		assert.NotEmpty(t, envelope.ResponseTime)
		response, ok := envelope.Response.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "t**@mail.com", response["maskedEmail"])
	})

	t.Run("error envelope", func(t *testing.T) {
		t.Parallel()
		auth := &stubAuthenticator{sendOtpErr: apperrors.NewWithCode(apperrors.ErrSendOtpFailed)}
		handler := newBindingHandler(t, auth, &stubStore{})

		rec := postWrapped(t, handler, "/binding-otp", binding.BindingOtpRequest{IndividualID: "individual-1"})
		require.Equal(t, http.StatusOK, rec.Code)

		envelope := decodeEnvelope(t, rec)
		require.Len(t, envelope.Errors, 1)
		assert.Equal(t, apperrors.ErrSendOtpFailed, envelope.Errors[0].ErrorCode)
		assert.Nil(t, envelope.Response)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		handler := newBindingHandler(t, &stubAuthenticator{}, &stubStore{})

		req := httptest.NewRequest(http.MethodPost, "/binding-otp", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		envelope := decodeEnvelope(t, rec)
		require.Len(t, envelope.Errors, 1)
		assert.Equal(t, apperrors.ErrInvalidRequest, envelope.Errors[0].ErrorCode)
	})
}

func TestValidateBindingEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("unknown binding", func(t *testing.T) {
		t.Parallel()
		handler := newBindingHandler(t, &stubAuthenticator{}, &stubStore{})

		rec := postWrapped(t, handler, "/validate-binding", validateBindingRequest{
			IndividualID:  "individual-1",
			TransactionID: "txn-1",
			Challenges: []binding.AuthChallenge{
				{AuthFactorType: binding.AuthFactorWLA, Format: binding.FormatJWT, Challenge: "token"},
			},
		})
		envelope := decodeEnvelope(t, rec)
		require.Len(t, envelope.Errors, 1)
		assert.Equal(t, apperrors.ErrKeyBindingNotFound, envelope.Errors[0].ErrorCode)
	})
}

func TestHealthcheckEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()
		handler := HealthcheckRouter(&stubStore{})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("store down", func(t *testing.T) {
		t.Parallel()
		handler := HealthcheckRouter(&stubStore{pingErr: assert.AnError})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestWalletPublicKeyWithoutProof(t *testing.T) {
	t.Parallel()
	handler := WalletRouter(&stubStore{})
	req := httptest.NewRequest(http.MethodGet, "/public-key?psuToken=psu-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "DPoP")
}

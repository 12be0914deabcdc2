// Package v1 provides version 1 of the binding API.
package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/mosip/esignet-binding/pkg/errors"
	"github.com/mosip/esignet-binding/pkg/logger"
)

// responseTimeFormat is the UTC timestamp layout of response envelopes.
const responseTimeFormat = "2006-01-02T15:04:05.000Z"

// apiError is one entry of a response envelope's errors array.
type apiError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// responseWrapper is the envelope every endpoint answers with.
type responseWrapper struct {
	ResponseTime string     `json:"responseTime"`
	Response     any        `json:"response,omitempty"`
	Errors       []apiError `json:"errors"`
}

// requestWrapper is the envelope every request arrives in.
type requestWrapper[T any] struct {
	RequestTime string `json:"requestTime"`
	Request     T      `json:"request"`
}

// decodeRequest unwraps a request envelope.
func decodeRequest[T any](r *http.Request) (T, error) {
	var wrapper requestWrapper[T]
	if err := json.NewDecoder(r.Body).Decode(&wrapper); err != nil {
		return wrapper.Request, apperrors.New(apperrors.ErrInvalidRequest, "malformed request body", err)
	}
	return wrapper.Request, nil
}

func writeResponse(w http.ResponseWriter, response any) {
	writeEnvelope(w, http.StatusOK, responseWrapper{
		ResponseTime: time.Now().UTC().Format(responseTimeFormat),
		Response:     response,
		Errors:       []apiError{},
	})
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		logger.Errorf("Unhandled error: %v", err)
		appErr = apperrors.NewWithCode(apperrors.ErrUnknown)
	}
	message := appErr.Message
	if message == "" {
		message = appErr.Code
	}
	writeEnvelope(w, http.StatusOK, responseWrapper{
		ResponseTime: time.Now().UTC().Format(responseTimeFormat),
		Errors:       []apiError{{ErrorCode: appErr.Code, ErrorMessage: message}},
	})
}

func writeEnvelope(w http.ResponseWriter, status int, envelope responseWrapper) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mosip/esignet-binding/pkg/binding"
)

// forwardedHeaders are passed through to the authenticator untouched.
var forwardedHeaders = []string{"X-Partner-Id", "X-Partner-Api-Key", "X-Request-Id"}

// BindingRouter sets up the key binding ceremony routes.
func BindingRouter(service *binding.Service, validator *binding.Validator) http.Handler {
	routes := &bindingRoutes{service: service, validator: validator}
	r := chi.NewRouter()
	r.Post("/binding-otp", routes.sendBindingOtp)
	r.Post("/wallet-binding", routes.bindWallet)
	r.Post("/validate-binding", routes.validateBinding)
	return r
}

type bindingRoutes struct {
	service   *binding.Service
	validator *binding.Validator
}

func (b *bindingRoutes) sendBindingOtp(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest[binding.BindingOtpRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := b.service.SendBindingOtp(r.Context(), req, passthroughHeaders(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeResponse(w, resp)
}

func (b *bindingRoutes) bindWallet(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest[binding.WalletBindingRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := b.service.BindWallet(r.Context(), req, passthroughHeaders(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeResponse(w, resp)
}

type validateBindingRequest struct {
	IndividualID  string                  `json:"individualId"`
	TransactionID string                  `json:"transactionId"`
	Challenges    []binding.AuthChallenge `json:"challengeList"`
}

func (b *bindingRoutes) validateBinding(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest[validateBindingRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := b.validator.ValidateBinding(r.Context(), req.IndividualID, req.TransactionID, req.Challenges)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResponse(w, result)
}

func passthroughHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string, len(forwardedHeaders))
	for _, name := range forwardedHeaders {
		if value := r.Header.Get(name); value != "" {
			headers[name] = value
		}
	}
	return headers
}

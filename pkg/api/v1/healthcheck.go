package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mosip/esignet-binding/pkg/registry"
)

// HealthcheckRouter sets up the healthcheck route.
func HealthcheckRouter(store registry.Store) http.Handler {
	routes := &healthcheckRoutes{store: store}
	r := chi.NewRouter()
	r.Get("/", routes.getHealthcheck)
	return r
}

type healthcheckRoutes struct {
	store registry.Store
}

func (h *healthcheckRoutes) getHealthcheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

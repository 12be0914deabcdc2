// Package api contains the REST API of the binding service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/mosip/esignet-binding/pkg/api/v1"
	"github.com/mosip/esignet-binding/pkg/binding"
	"github.com/mosip/esignet-binding/pkg/config"
	"github.com/mosip/esignet-binding/pkg/dpop"
	"github.com/mosip/esignet-binding/pkg/logger"
	"github.com/mosip/esignet-binding/pkg/registry"
)

const readHeaderTimeout = 10 * time.Second

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// Serve starts the binding API server and blocks until ctx is cancelled.
// It is assumed that the caller sets up appropriate signal handling.
func Serve(
	ctx context.Context,
	cfg *config.Config,
	service *binding.Service,
	validator *binding.Validator,
	dpopValidator *dpop.Validator,
	store registry.Store,
) error {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(cfg.Server.RequestTimeout),
		headersMiddleware,
		dpop.Middleware(dpopValidator, cfg.Dpop.ResourcePaths),
	)

	routers := map[string]http.Handler{
		"/health":     v1.HealthcheckRouter(store),
		"/v1/binding": v1.BindingRouter(service, validator),
		"/v1/wallet":  v1.WalletRouter(store),
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}

	address := net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port))
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	logger.Infof("Starting binding API server on %s", address)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Panicf("server stopped with error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Infof("Binding API server stopped")
	return nil
}

// Package httpapi exposes the authentication service over HTTP JSON: the
// four password-exchange endpoints, the legacy simple bind, token refresh
// and a health probe.
package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/bindguard/internal/logging"
	"github.com/dmitrijs2005/bindguard/internal/server/opaque"
	"github.com/dmitrijs2005/bindguard/internal/server/services"
)

type HTTPServer struct {
	address string
	opaque  *opaque.Service
	users   *services.UserService
	db      *sql.DB
	logger  logging.Logger
}

func NewHTTPServer(a string, l logging.Logger, os *opaque.Service, us *services.UserService, db *sql.DB) (*HTTPServer, error) {
	return &HTTPServer{
		address: a,
		logger:  l.With("module", "http_server"),
		opaque:  os,
		users:   us,
		db:      db,
	}, nil
}

// Routes builds the request mux. Split out from Run so handler tests can
// exercise it without a listener.
func (s *HTTPServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/opaque/registration/start", s.registrationStart)
	mux.HandleFunc("POST /auth/opaque/registration/finish", s.registrationFinish)
	mux.HandleFunc("POST /auth/opaque/login/start", s.loginStart)
	mux.HandleFunc("POST /auth/opaque/login/finish", s.loginFinish)
	mux.HandleFunc("POST /auth/simple/bind", s.simpleBind)
	mux.HandleFunc("POST /auth/refresh", s.refresh)
	mux.HandleFunc("GET /health", s.health)
	return mux
}

func (s *HTTPServer) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

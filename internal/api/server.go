// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api serves the agent's status, rules and Prometheus metrics over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"grimm.is/usbwall/internal/agent"
	"grimm.is/usbwall/internal/config"
	"grimm.is/usbwall/internal/errors"
	"grimm.is/usbwall/internal/logging"
	"grimm.is/usbwall/internal/metrics"
	"grimm.is/usbwall/internal/rule"
)

// Backend is the part of the agent the API reads from.
type Backend interface {
	Status() agent.Status
	Policies() ([]rule.Policy, error)
	Dump(ctx context.Context) ([]rule.Policy, error)
	Reconcile(ctx context.Context) (agent.Report, error)
}

// Server handles the HTTP API.
type Server struct {
	backend Backend
	metrics *metrics.Metrics
	logger  *logging.Logger
	router  *mux.Router
}

// NewServer creates a server with its routes registered.
func NewServer(backend Backend, m *metrics.Metrics, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	s := &Server{
		backend: backend,
		metrics: m,
		logger:  logger,
		router:  mux.NewRouter(),
	}
	s.RegisterRoutes(s.router)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// RegisterRoutes registers API routes
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	router.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	router.HandleFunc("/api/v1/rules", s.handleRules).Methods("GET")
	router.HandleFunc("/api/v1/reconcile", s.handleReconcile).Methods("POST")
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("status API listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrapf(err, errors.KindUnavailable, "failed to serve on %s", addr)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.backend.Status())
}

// handleRules returns the stored rules, or with ?source=kernel the rules
// currently installed in the kernel.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	var (
		policies []rule.Policy
		err      error
	)
	switch src := r.URL.Query().Get("source"); src {
	case "", "store":
		policies, err = s.backend.Policies()
	case "kernel":
		policies, err = s.backend.Dump(r.Context())
	default:
		s.writeError(w, http.StatusBadRequest, "Unknown rule source", errors.Errorf(errors.KindValidation, "source %q", src))
		return
	}
	if err != nil {
		s.writeError(w, statusFor(err), "Failed to list rules", err)
		return
	}
	s.writeJSON(w, http.StatusOK, config.NewPolicyFile(policies))
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := s.backend.Reconcile(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), "Reconcile failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errors.GetKind(err) {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindConflict:
		return http.StatusConflict
	case errors.KindTimeout:
		return http.StatusGatewayTimeout
	case errors.KindUnavailable, errors.KindRejected:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Debug("failed to write response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.writeJSON(w, status, response)
}

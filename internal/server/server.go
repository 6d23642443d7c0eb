// Package server exposes the verification service over HTTP. Routes are
// declared on a stdlib ServeMux with method patterns; responses are JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"por-go/internal/por"
)

// Server is the HTTP front end. It holds no domain state of its own; every
// handler delegates to the Service.
type Server struct {
	service     *por.Service
	apiKey      string
	adminAPIKey string
	log         por.Logger
	httpServer  *http.Server
}

// NewServer creates a Server listening on host:port once Start is called.
func NewServer(service *por.Service, host string, port int, apiKey, adminAPIKey string, log por.Logger) *Server {
	if log == nil {
		log = por.NopLogger{}
	}
	s := &Server{
		service:     service,
		apiKey:      apiKey,
		adminAPIKey: adminAPIKey,
		log:         log,
	}
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/verify", s.requireKey(s.apiKey, s.handleVerify))
	mux.HandleFunc("GET /api/verification", s.handleGetVerification)
	mux.HandleFunc("GET /api/verifications", s.handleListVerifications)
	mux.HandleFunc("GET /api/prover-version", s.handleProverVersion)
	mux.HandleFunc("POST /api/admin/verifications/{id}/delete", s.requireKey(s.adminAPIKey, s.handleDelete))
	mux.HandleFunc("POST /api/admin/update-prover", s.requireKey(s.adminAPIKey, s.handleUpdateProver))
	return mux
}

// Start blocks serving requests until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routing table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// requireKey enforces bearer authentication against the given key.
func (s *Server) requireKey(key string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			writeErrorStatus(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if key == "" {
			writeErrorStatus(w, http.StatusInternalServerError, "api key not configured")
			return
		}
		if strings.TrimPrefix(header, "Bearer ") != key {
			writeErrorStatus(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"queueLength":   s.service.QueueLen(),
		"activeWorkers": s.service.ActiveWorkers(),
	})
}

type verifyRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.service.Submit(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	q, err := parseRecordQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rec, err := s.service.Get(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListVerifications(w http.ResponseWriter, r *http.Request) {
	page := intParam(r, "page", 1)
	pageSize := intParam(r, "pageSize", 10)

	p, err := s.service.List(r.Context(), page, pageSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProverVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"proverVersion": s.service.ProverVersion()})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorStatus(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.service.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleUpdateProver(w http.ResponseWriter, r *http.Request) {
	// The update can take a while; run it off the request and report that it
	// started. The new version is observable via /api/prover-version.
	go func() {
		if err := s.service.UpdateProver(context.Background()); err != nil {
			s.log.Error("prover update failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusOK, map[string]string{"status": "starting"})
}

func parseRecordQuery(r *http.Request) (por.RecordQuery, error) {
	var q por.RecordQuery
	values := r.URL.Query()

	if v := values.Get("id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return q, fmt.Errorf("%w: invalid id %q", por.ErrInvalidQuery, v)
		}
		q.ID = id
	}
	if v := values.Get("proofTimestamp"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ts <= 0 {
			return q, fmt.Errorf("%w: invalid proofTimestamp %q", por.ErrInvalidQuery, v)
		}
		q.ProofTimestamp = ts
	}
	q.FileHash = values.Get("fileHash")

	return q, nil
}

func intParam(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, por.ErrInvalidInput),
		errors.Is(err, por.ErrInvalidQuery),
		errors.Is(err, por.ErrProverMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, por.ErrForbiddenAddress):
		status = http.StatusForbidden
	case errors.Is(err, por.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, por.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, por.ErrFetch), errors.Is(err, por.ErrExtract):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
		writeErrorStatus(w, status, "internal error")
		return
	}
	writeErrorStatus(w, status, err.Error())
}

func writeErrorStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

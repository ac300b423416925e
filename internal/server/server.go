// Package server exposes scans over HTTP for a browser front end.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"rejectiondash/internal/auth"
	"rejectiondash/internal/gmail"
	"rejectiondash/internal/model"
	"rejectiondash/internal/scan"

	"github.com/sirupsen/logrus"
)

// StatsScanner runs one scan for an access token.
type StatsScanner interface {
	Scan(ctx context.Context, accessToken string, profile model.UserProfile) (model.RejectionStats, error)
}

// QuoteSource hands out motivational quotes.
type QuoteSource interface {
	Random() string
}

type ScanRequest struct {
	AccessToken string `json:"access_token"`
}

type ScanResponse struct {
	Stats model.RejectionStats `json:"stats"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Server provides the HTTP API.
type Server struct {
	scanner  StatsScanner
	profiles auth.ProfileResolver
	quotes   QuoteSource
	origins  []string
	log      logrus.FieldLogger

	server *http.Server
}

func New(scanner StatsScanner, profiles auth.ProfileResolver, quotes QuoteSource, allowedOrigins []string, log logrus.FieldLogger) *Server {
	return &Server{
		scanner:  scanner,
		profiles: profiles,
		quotes:   quotes,
		origins:  allowedOrigins,
		log:      log,
	}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /scan", s.handleScan)
	mux.HandleFunc("GET /quotes/random", s.handleRandomQuote)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return s.cors(mux)
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", addr).Info("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop waits for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeDetail(w, http.StatusBadRequest, "Request body must be JSON with an access_token field.")
		return
	}
	var (
		profile model.UserProfile
		err     error
	)
	if strings.TrimSpace(req.AccessToken) != "" {
		profile, err = s.profiles.Resolve(r.Context(), req.AccessToken)
	}
	if err != nil || profile.Email == "" {
		if err != nil {
			s.log.WithError(err).Warn("profile lookup failed")
		}
		s.writeDetail(w, http.StatusUnauthorized, "Could not retrieve user profile from token.")
		return
	}

	stats, err := s.scanner.Scan(r.Context(), req.AccessToken, profile)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ScanResponse{Stats: stats})
}

func (s *Server) handleRandomQuote(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"quote": s.quotes.Random()})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Rejection Dashboard API is running!"})
}

// cors echoes allowed origins with credentials and answers preflight requests.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && slices.Contains(s.origins, origin)
		if allowed {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				h.Set("Access-Control-Max-Age", "600")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Warn("write response")
	}
}

func (s *Server) writeDetail(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}

// writeError maps scan failures onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		authErr       *auth.AuthError
		listErr       *gmail.UpstreamListError
		unexpectedErr *scan.UnexpectedError
	)
	switch {
	case errors.As(err, &authErr):
		s.writeDetail(w, http.StatusUnauthorized, authErr.Message)
	case errors.As(err, &listErr):
		s.log.WithError(err).Error("scan listing failed")
		s.writeDetail(w, http.StatusInternalServerError, "Failed during Gmail search pagination: "+listErr.Err.Error())
	case errors.As(err, &unexpectedErr):
		s.log.WithError(err).Error("scan failed")
		s.writeDetail(w, http.StatusInternalServerError, "Unexpected error during Gmail scan: "+unexpectedErr.Err.Error())
	default:
		s.log.WithError(err).Error("scan failed")
		s.writeDetail(w, http.StatusInternalServerError, "An unexpected error occurred: "+err.Error())
	}
}

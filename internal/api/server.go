package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"walink/internal/coordinator"
	"walink/internal/gateway"
	"walink/pkg/interfaces"
	"walink/pkg/types"
)

// Coordinator is the intent surface the API exposes to the admin UI.
// Declared here to avoid coupling the HTTP layer to the concrete
// coordinator implementation.
type Coordinator interface {
	Sessions() []types.SessionView
	Transient() types.TransientState
	RequestConnection(ctx context.Context, tenantID string) error
	ShowQR(ctx context.Context, tenantID string) (string, error)
	Logout(ctx context.Context, tenantID string) error
	Refresh(ctx context.Context) error
	CloseDialog(ctx context.Context) error
}

// EventLog is the journal read surface needed for the per-tenant audit
// endpoint.
type EventLog interface {
	TenantEvents(ctx context.Context, tenantID string, limit int) ([]interfaces.JournalEntry, error)
}

// HubStats reports UI observer counts for the health endpoint.
type HubStats interface {
	ConnectionCount() int
}

// Server is the admin REST API: the session list read model, the three
// connection intents, the transient dialog state and the audit trail.
// No business logic lives here, only HTTP handling and JSON shaping.
type Server struct {
	coordinator Coordinator
	eventLog    EventLog
	hubStats    HubStats
	verifier    *TokenVerifier
	limiter     *RateLimiter
	router      *http.ServeMux
	log         zerolog.Logger
}

// NewServer creates the API server and sets up routing.
func NewServer(coord Coordinator, eventLog EventLog, hubStats HubStats, verifier *TokenVerifier, logger zerolog.Logger) *Server {
	s := &Server{
		coordinator: coord,
		eventLog:    eventLog,
		hubStats:    hubStats,
		verifier:    verifier,
		limiter:     NewRateLimiter(60, time.Minute),
		router:      http.NewServeMux(),
		log:         logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	authed := func(h http.HandlerFunc) http.Handler {
		return s.corsMiddleware(s.jsonMiddleware(s.limiter.Middleware(s.verifier.Middleware(h))))
	}
	s.router.Handle("/api/sessions", authed(s.handleSessions))
	s.router.Handle("/api/sessions/", authed(s.handleSessionByTenant))
	s.router.Handle("/api/state", authed(s.handleState))
	s.router.Handle("/api/state/dialog", authed(s.handleDialog))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler for mounting under the HTTP server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleSessions serves the collection endpoints (GET /api/sessions).
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listSessions(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionByTenant routes per-tenant endpoints:
//
//	POST   /api/sessions/refresh
//	POST   /api/sessions/{tenant}/connect
//	GET    /api/sessions/{tenant}/qr
//	GET    /api/sessions/{tenant}/events
//	DELETE /api/sessions/{tenant}
func (s *Server) handleSessionByTenant(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if path == "" {
		s.sendError(w, "Tenant ID required", http.StatusBadRequest)
		return
	}

	if path == "refresh" {
		if r.Method != http.MethodPost {
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.refresh(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	tenantID := parts[0]
	if !types.IsValidTenantID(tenantID) {
		s.sendError(w, "Invalid tenant ID", http.StatusBadRequest)
		return
	}

	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodDelete:
		s.logout(w, r, tenantID)
	case sub == "connect" && r.Method == http.MethodPost:
		s.requestConnection(w, r, tenantID)
	case sub == "qr" && r.Method == http.MethodGet:
		s.showQR(w, r, tenantID)
	case sub == "events" && r.Method == http.MethodGet:
		s.tenantEvents(w, r, tenantID)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.sendJSON(w, http.StatusOK, s.coordinator.Transient())
}

func (s *Server) handleDialog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.coordinator.CloseDialog(r.Context()); err != nil {
		s.sendIntentError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"message": "Dialog closed"})
}

type listSessionsResponse struct {
	Sessions []types.SessionView `json:"sessions"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	views := s.coordinator.Sessions()
	if views == nil {
		views = []types.SessionView{}
	}
	s.sendJSON(w, http.StatusOK, listSessionsResponse{Sessions: views})
}

func (s *Server) requestConnection(w http.ResponseWriter, r *http.Request, tenantID string) {
	if err := s.coordinator.RequestConnection(r.Context(), tenantID); err != nil {
		s.sendIntentError(w, err)
		return
	}
	// The QR challenge arrives on the UI push stream; 202 tells the
	// caller the handshake has started, not finished.
	s.sendJSON(w, http.StatusAccepted, map[string]string{"message": "Connection requested"})
}

type qrResponse struct {
	TenantID string `json:"tenant_id"`
	QR       string `json:"qr"`
}

func (s *Server) showQR(w http.ResponseWriter, r *http.Request, tenantID string) {
	qr, err := s.coordinator.ShowQR(r.Context(), tenantID)
	if err != nil {
		s.sendIntentError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, qrResponse{TenantID: tenantID, QR: qr})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request, tenantID string) {
	if err := s.coordinator.Logout(r.Context(), tenantID); err != nil {
		s.sendIntentError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"message": "Session logged out"})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Refresh(r.Context()); err != nil {
		s.sendIntentError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"message": "Session list refreshed"})
}

type tenantEventsResponse struct {
	TenantID string                    `json:"tenant_id"`
	Events   []interfaces.JournalEntry `json:"events"`
}

func (s *Server) tenantEvents(w http.ResponseWriter, r *http.Request, tenantID string) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.sendError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.eventLog.TenantEvents(r.Context(), tenantID, limit)
	if err != nil {
		s.log.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to read tenant events")
		s.sendError(w, "Failed to read events", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []interfaces.JournalEntry{}
	}
	s.sendJSON(w, http.StatusOK, tenantEventsResponse{TenantID: tenantID, Events: entries})
}

type healthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Sessions      int       `json:"sessions"`
	UIConnections int       `json:"ui_connections"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC(),
		Sessions:      len(s.coordinator.Sessions()),
		UIConnections: s.hubStats.ConnectionCount(),
	})
}

// sendIntentError maps coordinator/gateway failures onto HTTP statuses.
func (s *Server) sendIntentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidTenantID):
		s.sendError(w, "Invalid tenant ID", http.StatusBadRequest)
	case errors.Is(err, interfaces.ErrTenantNotFound):
		s.sendError(w, "Tenant not found", http.StatusNotFound)
	case errors.Is(err, gateway.ErrQRNotReady):
		s.sendError(w, "No QR challenge available yet", http.StatusConflict)
	case errors.Is(err, coordinator.ErrSuperseded):
		s.sendError(w, "Superseded by a newer request", http.StatusConflict)
	case errors.Is(err, coordinator.ErrNotRunning):
		s.sendError(w, "Coordinator is not running", http.StatusServiceUnavailable)
	default:
		s.sendError(w, "Gateway request failed", http.StatusBadGateway)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, errorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, payload any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn().Err(err).Msg("failed to encode response")
	}
}

// corsMiddleware allows the admin UI's browser origin. Open in
// development; the bearer token is the real gate.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lumarush/lumarush-backend/internal/auth"
	"github.com/lumarush/lumarush-backend/internal/domain"
	"github.com/lumarush/lumarush-backend/internal/ws"
)

// LeaderboardAPI is the score pipeline and query surface the handler exposes.
type LeaderboardAPI interface {
	Submit(ctx context.Context, identity domain.Identity, raw []byte) (*domain.SubmissionResult, error)
	GetMyHighScore(ctx context.Context, identity domain.Identity) (*domain.HighScoreResult, error)
	ListLeaderboard(ctx context.Context, raw []byte) (*domain.LeaderboardListing, error)
}

// LoginAPI runs the gated login flow.
type LoginAPI interface {
	Login(ctx context.Context, provider domain.AuthProvider, externalID, username string) (*auth.LoginResult, error)
}

// Handler provides HTTP handlers for the LumaRush API
type Handler struct {
	service  LeaderboardAPI
	login    LoginAPI
	sessions *auth.Sessions
	hub      *ws.Hub
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service LeaderboardAPI, login LoginAPI, sessions *auth.Sessions, hub *ws.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		login:    login,
		sessions: sessions,
		hub:      hub,
		logger:   logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(h.sessions.Middleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/custom", h.AuthenticateCustom)
		r.Post("/auth/device", h.AuthenticateDevice)

		r.Post("/rpc/submit-score", h.SubmitScore)
		r.Post("/rpc/get-my-high-score", h.GetMyHighScore)
		r.Post("/rpc/list-leaderboard", h.ListLeaderboard)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error onto an HTTP status. Internal
// failures are logged and masked.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
	case errors.Is(err, domain.ErrAuthRejected):
		h.writeError(w, http.StatusUnauthorized, domain.ErrAuthRejected)
	case domain.IsCallerError(err):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws.Serve(h.hub, h.logger, w, r)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

type authRequest struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// AuthenticateCustom handles logins through the custom provider.
func (h *Handler) AuthenticateCustom(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, domain.AuthProviderCustom)
}

// AuthenticateDevice handles logins through the device provider.
func (h *Handler) AuthenticateDevice(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, domain.AuthProviderDevice)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, provider domain.AuthProvider) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPayload)
		return
	}

	result, err := h.login.Login(r.Context(), provider, req.ID, req.Username)
	if err != nil {
		h.writeServiceError(w, "login", err)
		return
	}

	h.writeSuccess(w, result)
}

// SubmitScore handles an authenticated score submission.
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPayload)
		return
	}

	result, err := h.service.Submit(r.Context(), identity, raw)
	if err != nil {
		h.writeServiceError(w, "submit-score", err)
		return
	}

	h.writeSuccess(w, result)
}

// GetMyHighScore returns the caller's own record and stats.
func (h *Handler) GetMyHighScore(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
		return
	}

	result, err := h.service.GetMyHighScore(r.Context(), identity)
	if err != nil {
		h.writeServiceError(w, "get-my-high-score", err)
		return
	}

	h.writeSuccess(w, result)
}

// ListLeaderboard returns a leaderboard page. No authentication required.
func (h *Handler) ListLeaderboard(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPayload)
		return
	}

	result, err := h.service.ListLeaderboard(r.Context(), raw)
	if err != nil {
		h.writeServiceError(w, "list-leaderboard", err)
		return
	}

	h.writeSuccess(w, result)
}

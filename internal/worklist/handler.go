package worklist

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/obakeng/relitrack/internal/pkg/httputil"
)

// Handler handles HTTP requests for the worklist module.
type Handler struct {
	service *Service
}

// NewHandler creates a new worklist handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers all HTTP routes for the worklist module.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/worklist", h.Get)
}

// Get handles GET /worklist request. The list is built for the authenticated
// user from the roles carried in the request context.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	roles := httputil.GetRoles(r.Context())

	entries, err := h.service.ForUser(r.Context(), userID, roles)
	if err != nil {
		slog.Error("failed to build worklist", "user_id", userID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	httputil.Success(w, http.StatusOK, entries)
}

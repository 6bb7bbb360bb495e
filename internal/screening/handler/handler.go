package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"comply/internal/screening"
	"comply/pkg/platform/httputil"
	"comply/pkg/platform/sentinel"
	"comply/pkg/requestcontext"
)

// Screener runs consolidated screenings.
type Screener interface {
	Screen(ctx context.Context, e screening.Entity) (*screening.Result, error)
}

// ResultFinder reads the persisted screening audit trail. Nil when no store
// is configured; the read endpoints then answer 503.
type ResultFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*screening.Result, error)
	LatestForEntity(ctx context.Context, entityID string) (*screening.Result, error)
}

// Handler exposes on-demand screening and the screening audit trail to
// compliance operators.
type Handler struct {
	screener Screener
	results  ResultFinder
	logger   *slog.Logger
}

// New constructs a screening handler.
func New(screener Screener, results ResultFinder, logger *slog.Logger) *Handler {
	return &Handler{screener: screener, results: results, logger: logger}
}

// Register mounts screening endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/screenings", h.HandleScreen)
	r.Get("/screenings/{id}", h.HandleGet)
	r.Get("/entities/{entityID}/screening", h.HandleLatestForEntity)
}

// ScreenRequest is the transport shape for POST /screenings.
type ScreenRequest struct {
	EntityID    string `json:"entity_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Country     string `json:"country"`
	CrossBorder bool   `json:"cross_border"`
	Risk        string `json:"risk"`
}

// HandleScreen handles POST /screenings.
func (h *Handler) HandleScreen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[ScreenRequest](w, r)
	if !ok {
		return
	}

	result, err := h.screener.Screen(ctx, screening.Entity{
		ID:          req.EntityID,
		Name:        req.Name,
		Type:        screening.EntityType(req.Type),
		Country:     req.Country,
		CrossBorder: req.CrossBorder,
		Risk:        screening.RiskLevel(req.Risk),
	})
	if err != nil && !errors.Is(err, screening.ErrAllSourcesFailed) {
		h.logger.ErrorContext(ctx, "screening failed",
			"request_id", requestcontext.RequestID(ctx),
			"entity_id", req.EntityID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	// A total source failure still carries the fail-safe result; the
	// operator sees the FLAG_FOR_REVIEW disposition rather than a 5xx.
	h.logger.InfoContext(ctx, "screening requested via api",
		"request_id", requestcontext.RequestID(ctx),
		"entity_id", req.EntityID,
		"action", result.Action,
		"incomplete", result.Incomplete,
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleGet handles GET /screenings/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		httputil.WriteError(w, fmt.Errorf("screening audit store not configured: %w", sentinel.ErrUnavailable))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, sentinel.ErrValidation)
		return
	}
	result, err := h.results.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleLatestForEntity handles GET /entities/{entityID}/screening.
func (h *Handler) HandleLatestForEntity(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		httputil.WriteError(w, fmt.Errorf("screening audit store not configured: %w", sentinel.ErrUnavailable))
		return
	}
	entityID := chi.URLParam(r, "entityID")
	if entityID == "" {
		httputil.WriteError(w, sentinel.ErrValidation)
		return
	}
	result, err := h.results.LatestForEntity(r.Context(), entityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

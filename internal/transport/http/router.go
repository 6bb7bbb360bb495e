// Package httptransport wires the HTTP surface: operator-facing filing and
// screening endpoints behind JWT auth, plus unauthenticated health and
// metrics endpoints for the platform.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	filinghandler "comply/internal/filing/handler"
	screeninghandler "comply/internal/screening/handler"
	"comply/pkg/platform/httputil"
	"comply/pkg/platform/middleware/auth"
	"comply/pkg/platform/middleware/requestid"
	"comply/pkg/platform/middleware/requesttime"
)

// Roles accepted on operator endpoints. Tokens carry exactly one role claim.
const (
	RoleComplianceOfficer = "compliance_officer"
	RoleComplianceAdmin   = "compliance_admin"
)

// Dependencies collects the wired services the HTTP surface exposes.
// ReadyCheck is optional; when set, /readyz reports 503 until it passes.
type Dependencies struct {
	Filing     *filinghandler.Handler
	Screening  *screeninghandler.Handler
	Validator  auth.JWTValidator
	ReadyCheck func() error
}

// NewRouter builds the full route tree. Business logic stays in the handler
// and service packages; this file only decides what sits behind auth.
func NewRouter(deps Dependencies, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if deps.ReadyCheck != nil {
			if err := deps.ReadyCheck(); err != nil {
				logger.WarnContext(req.Context(), "readiness check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Validator, logger))
		r.Use(auth.RequireRole(logger, RoleComplianceOfficer, RoleComplianceAdmin))
		deps.Filing.Register(r)
		deps.Screening.Register(r)
	})

	return r
}

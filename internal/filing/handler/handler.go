package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"comply/internal/filing"
	"comply/pkg/platform/httputil"
	"comply/pkg/platform/sentinel"
	"comply/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the filing operations the transport layer needs.
type Service interface {
	Submit(ctx context.Context, req filing.SubmitRequest) (*filing.Filing, error)
	Review(ctx context.Context, id uuid.UUID, reviewer, notes string) (*filing.Filing, error)
	Approve(ctx context.Context, id uuid.UUID, approvedAmount float64, notes string) (*filing.Filing, error)
	Reject(ctx context.Context, id uuid.UUID, reason, notes string) (*filing.Filing, error)
	RecordPayment(ctx context.Context, id uuid.UUID, paidAmount float64, reference string) (*filing.Filing, error)
	Escalate(ctx context.Context, id uuid.UUID, reason string) (*filing.Filing, error)
	Amend(ctx context.Context, closedID uuid.UUID, req filing.SubmitRequest) (*filing.Filing, error)
	Get(ctx context.Context, id uuid.UUID) (*filing.Filing, error)
}

// Handler wires filing endpoints to the filing service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a filing handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts filing endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/filings", h.HandleSubmit)
	r.Get("/filings/{id}", h.HandleGet)
	r.Post("/filings/{id}/review", h.HandleReview)
	r.Post("/filings/{id}/approve", h.HandleApprove)
	r.Post("/filings/{id}/reject", h.HandleReject)
	r.Post("/filings/{id}/payment", h.HandlePayment)
	r.Post("/filings/{id}/escalate", h.HandleEscalate)
	r.Post("/filings/{id}/amend", h.HandleAmend)
}

// HandleSubmit handles POST /filings.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, ok := httputil.Decode[SubmitRequest](w, r)
	if !ok {
		return
	}

	f, err := h.service.Submit(ctx, req.ToDomain())
	if err != nil {
		h.logger.ErrorContext(ctx, "filing submission failed",
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", req.SubjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "filing submitted via api",
		"request_id", requestcontext.RequestID(ctx),
		"filing_id", f.ID,
		"type", f.Type,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromFiling(f))
}

// HandleGet handles GET /filings/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.filingID(w, r)
	if !ok {
		return
	}
	f, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFiling(f))
}

// HandleReview handles POST /filings/{id}/review.
func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.filingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[ReviewRequest](w, r)
	if !ok {
		return
	}
	h.transition(w, r, id, "review", func(ctx context.Context) (*filing.Filing, error) {
		return h.service.Review(ctx, id, req.Reviewer, req.Notes)
	})
}

// HandleApprove handles POST /filings/{id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.filingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[ApproveRequest](w, r)
	if !ok {
		return
	}
	h.transition(w, r, id, "approve", func(ctx context.Context) (*filing.Filing, error) {
		return h.service.Approve(ctx, id, req.ApprovedAmount, req.Notes)
	})
}

// HandleReject handles POST /filings/{id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.filingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[RejectRequest](w, r)
	if !ok {
		return
	}
	h.transition(w, r, id, "reject", func(ctx context.Context) (*filing.Filing, error) {
		return h.service.Reject(ctx, id, req.Reason, req.Notes)
	})
}

// HandlePayment handles POST /filings/{id}/payment.
func (h *Handler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.filingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[PaymentRequest](w, r)
	if !ok {
		return
	}
	h.transition(w, r, id, "payment", func(ctx context.Context) (*filing.Filing, error) {
		return h.service.RecordPayment(ctx, id, req.PaidAmount, req.Reference)
	})
}

// HandleEscalate handles POST /filings/{id}/escalate.
func (h *Handler) HandleEscalate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.filingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[EscalateRequest](w, r)
	if !ok {
		return
	}
	h.transition(w, r, id, "escalate", func(ctx context.Context) (*filing.Filing, error) {
		return h.service.Escalate(ctx, id, req.Reason)
	})
}

// HandleAmend handles POST /filings/{id}/amend.
func (h *Handler) HandleAmend(w http.ResponseWriter, r *http.Request) {
	id, ok := h.filingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[SubmitRequest](w, r)
	if !ok {
		return
	}
	f, err := h.service.Amend(r.Context(), id, req.ToDomain())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromFiling(f))
}

// transition runs one state-machine call and writes the common response
// shape.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, id uuid.UUID, op string, fn func(ctx context.Context) (*filing.Filing, error)) {
	ctx := r.Context()
	f, err := fn(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "filing transition failed",
			"request_id", requestcontext.RequestID(ctx),
			"filing_id", id,
			"operation", op,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFiling(f))
}

func (h *Handler) filingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, sentinel.ErrValidation)
		return uuid.Nil, false
	}
	return id, true
}

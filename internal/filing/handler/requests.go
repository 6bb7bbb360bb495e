package handler

import (
	"time"

	"github.com/google/uuid"

	"comply/internal/filing"
)

// SubmitRequest is the transport shape for POST /filings.
type SubmitRequest struct {
	SubjectID     string  `json:"subject_id"`
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	Reason        string  `json:"reason"`
	CorrelationID string  `json:"correlation_id"`
}

// ToDomain maps the transport request into the domain shape. Validation
// lives in the service, not here.
func (r SubmitRequest) ToDomain() filing.SubmitRequest {
	return filing.SubmitRequest{
		SubjectID:     r.SubjectID,
		Type:          filing.Type(r.Type),
		Amount:        r.Amount,
		Reason:        r.Reason,
		CorrelationID: r.CorrelationID,
	}
}

// ReviewRequest is the transport shape for POST /filings/{id}/review.
type ReviewRequest struct {
	Reviewer string `json:"reviewer"`
	Notes    string `json:"notes"`
}

// ApproveRequest is the transport shape for POST /filings/{id}/approve.
type ApproveRequest struct {
	ApprovedAmount float64 `json:"approved_amount"`
	Notes          string  `json:"notes"`
}

// RejectRequest is the transport shape for POST /filings/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

// PaymentRequest is the transport shape for POST /filings/{id}/payment.
type PaymentRequest struct {
	PaidAmount float64 `json:"paid_amount"`
	Reference  string  `json:"reference"`
}

// EscalateRequest is the transport shape for POST /filings/{id}/escalate.
type EscalateRequest struct {
	Reason string `json:"reason"`
}

// FilingResponse is the transport shape of a filing.
type FilingResponse struct {
	ID               uuid.UUID `json:"id"`
	SubjectID        string    `json:"subject_id"`
	Type             string    `json:"type"`
	Status           string    `json:"status"`
	Amount           float64   `json:"amount"`
	Reason           string    `json:"reason"`
	Priority         string    `json:"priority"`
	Reviewer         string    `json:"reviewer,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	ApprovedAmount   float64   `json:"approved_amount,omitempty"`
	PaidAmount       float64   `json:"paid_amount,omitempty"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	EscalationReason string    `json:"escalation_reason,omitempty"`
	AmendsID         string    `json:"amends_id,omitempty"`
	CorrelationID    string    `json:"correlation_id,omitempty"`
	CreatedAt        string    `json:"created_at"`
	Deadline         string    `json:"deadline"`
	UpdatedAt        string    `json:"updated_at"`
	Overdue          bool      `json:"overdue"`
	Version          int64     `json:"version"`
}

// FromFiling maps a domain filing into the transport shape.
func FromFiling(f *filing.Filing) FilingResponse {
	resp := FilingResponse{
		ID:               f.ID,
		SubjectID:        f.SubjectID,
		Type:             string(f.Type),
		Status:           string(f.Status),
		Amount:           f.Amount,
		Reason:           f.Reason,
		Priority:         string(f.Priority),
		Reviewer:         f.Reviewer,
		Notes:            f.Notes,
		ApprovedAmount:   f.ApprovedAmount,
		PaidAmount:       f.PaidAmount,
		PaymentReference: f.PaymentReference,
		FailureReason:    f.FailureReason,
		EscalationReason: f.EscalationReason,
		CorrelationID:    f.CorrelationID,
		CreatedAt:        f.CreatedAt.Format(time.RFC3339),
		Deadline:         f.Deadline.Format(time.RFC3339),
		UpdatedAt:        f.UpdatedAt.Format(time.RFC3339),
		Overdue:          f.Overdue(time.Now()),
		Version:          f.Version,
	}
	if f.AmendsID != uuid.Nil {
		resp.AmendsID = f.AmendsID.String()
	}
	return resp
}

package filing

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the regulatory obligation a filing tracks.
type Type string

const (
	TypeSAR      Type = "SAR"
	TypeCTR      Type = "CTR"
	TypeForm8300 Type = "FORM_8300"
	TypeBSA      Type = "BSA"
	TypeAML      Type = "AML"
	TypeOFAC     Type = "OFAC"
	TypeFINRA    Type = "FINRA"
	TypeGeneric  Type = "GENERIC"
)

// Status is a filing's lifecycle state. OVERDUE is derived at read time and
// never stored.
type Status string

const (
	StatusSubmitted   Status = "SUBMITTED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusPaid        Status = "PAID"
	StatusFailed      Status = "FAILED"
)

// IsTerminal reports whether the status admits no further transitions.
// Regulatory retention keeps terminal filings for at least five years;
// they are archival, never deleted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// Priority orders filings for operator attention.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// AtLeast returns the higher of the two priorities.
func (p Priority) AtLeast(floor Priority) Priority {
	if priorityRank[p] < priorityRank[floor] {
		return floor
	}
	return p
}

// Filing is one tracked regulatory obligation. Mutations flow only through
// the service's transition methods; Version backs the optimistic check that
// serializes concurrent transitions on the same id.
type Filing struct {
	ID               uuid.UUID
	SubjectID        string
	Type             Type
	Status           Status
	Amount           float64
	Reason           string
	Priority         Priority
	EscalationReason string
	Reviewer         string
	Notes            string
	ApprovedAmount   float64
	PaidAmount       float64
	PaymentReference string
	FailureReason    string
	// AmendsID links an amendment to the closed filing it supersedes.
	AmendsID      uuid.UUID
	CorrelationID string
	CreatedAt     time.Time
	Deadline      time.Time
	UpdatedAt     time.Time
	Version       int64
}

// Overdue reports whether the filing has blown its deadline while still
// active. Derived, not stored.
func (f *Filing) Overdue(now time.Time) bool {
	return !f.Status.IsTerminal() && now.After(f.Deadline)
}

// SubmitRequest carries the fields needed to open a filing.
type SubmitRequest struct {
	SubjectID     string
	Type          Type
	Amount        float64
	Reason        string
	CorrelationID string
	// AmendsID, when set, links this filing to a closed one it amends.
	AmendsID uuid.UUID
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"comply/internal/alerts"
	"comply/internal/filing"
	"comply/pkg/platform/sentinel"
)

// Store persists filings. Update must apply an optimistic version check and
// return sentinel.ErrConflict when a concurrent transition won the race.
type Store interface {
	Save(ctx context.Context, f *filing.Filing) error
	Update(ctx context.Context, f *filing.Filing) error
	FindByID(ctx context.Context, id uuid.UUID) (*filing.Filing, error)
	ListActive(ctx context.Context) ([]*filing.Filing, error)
}

// EventPublisher emits downstream workflow events (payment requests, status
// updates). Fire-and-forget: publish failures are the transport's concern.
type EventPublisher interface {
	PublishFilingEvent(ctx context.Context, event string, f *filing.Filing)
}

// Service is the filing state machine. Every mutation flows through one of
// its transition methods; illegal transitions fail explicitly and leave the
// filing untouched.
type Service struct {
	store     Store
	policy    filing.Policy
	notifier  alerts.Notifier
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	// escalateNotifyFailures treats a failed compliance notification as a
	// first-class failure worth an operator alert, instead of log-and-continue.
	escalateNotifyFailures bool
}

// Option configures the service.
type Option func(*Service)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPolicy overrides the default filing policy.
func WithPolicy(p filing.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithNotifyFailureEscalation makes failed subject notifications raise an
// operator alert rather than being silently logged.
func WithNotifyFailureEscalation() Option {
	return func(s *Service) { s.escalateNotifyFailures = true }
}

// New constructs the filing service.
func New(store Store, notifier alerts.Notifier, publisher EventPublisher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		policy:    filing.DefaultPolicy(),
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit opens a filing in SUBMITTED. Priority and deadline derive from the
// policy table; high-value submissions raise an out-of-band alert without
// changing state.
func (s *Service) Submit(ctx context.Context, req filing.SubmitRequest) (*filing.Filing, error) {
	if req.SubjectID == "" {
		return nil, fmt.Errorf("subject id is required: %w", sentinel.ErrValidation)
	}
	if req.Type == "" {
		return nil, fmt.Errorf("filing type is required: %w", sentinel.ErrValidation)
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("amount must not be negative: %w", sentinel.ErrValidation)
	}

	now := s.now()
	f := &filing.Filing{
		ID:            uuid.New(),
		SubjectID:     req.SubjectID,
		Type:          req.Type,
		Status:        filing.StatusSubmitted,
		Amount:        req.Amount,
		Reason:        req.Reason,
		Priority:      s.policy.PriorityFor(req.Amount, req.Reason),
		AmendsID:      req.AmendsID,
		CorrelationID: req.CorrelationID,
		CreatedAt:     now,
		Deadline:      s.policy.DeadlineFor(now, req.Reason),
		UpdatedAt:     now,
		Version:       1,
	}
	if err := s.store.Save(ctx, f); err != nil {
		return nil, fmt.Errorf("save filing: %w", err)
	}

	if s.policy.HighValueAlert(req.Amount) {
		s.alert(ctx, "High-value filing submitted",
			fmt.Sprintf("filing=%s type=%s subject=%s amount=%.2f", f.ID, f.Type, f.SubjectID, f.Amount),
			alerts.SeverityHigh)
	}
	s.publisher.PublishFilingEvent(ctx, "filing.submitted", f)

	s.logger.Info("filing submitted",
		"filing_id", f.ID,
		"type", f.Type,
		"subject_id", f.SubjectID,
		"priority", f.Priority,
		"deadline", f.Deadline,
		"correlation_id", f.CorrelationID,
	)
	return f, nil
}

// Review moves a SUBMITTED filing to UNDER_REVIEW.
func (s *Service) Review(ctx context.Context, id uuid.UUID, reviewer, notes string) (*filing.Filing, error) {
	return s.transition(ctx, id, filing.StatusUnderReview, []filing.Status{filing.StatusSubmitted},
		func(f *filing.Filing) {
			f.Reviewer = reviewer
			f.Notes = notes
		},
		func(ctx context.Context, f *filing.Filing) {
			s.publisher.PublishFilingEvent(ctx, "filing.under_review", f)
		})
}

// Approve moves an UNDER_REVIEW filing to APPROVED and emits the downstream
// payment-request event.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approvedAmount float64, notes string) (*filing.Filing, error) {
	if approvedAmount < 0 {
		return nil, fmt.Errorf("approved amount must not be negative: %w", sentinel.ErrValidation)
	}
	return s.transition(ctx, id, filing.StatusApproved, []filing.Status{filing.StatusUnderReview},
		func(f *filing.Filing) {
			f.ApprovedAmount = approvedAmount
			f.Notes = notes
		},
		func(ctx context.Context, f *filing.Filing) {
			s.publisher.PublishFilingEvent(ctx, "filing.payment_requested", f)
		})
}

// Reject moves an UNDER_REVIEW filing to REJECTED and notifies the subject.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason, notes string) (*filing.Filing, error) {
	return s.transition(ctx, id, filing.StatusRejected, []filing.Status{filing.StatusUnderReview},
		func(f *filing.Filing) {
			f.Reason = reason
			f.Notes = notes
		},
		func(ctx context.Context, f *filing.Filing) {
			s.publisher.PublishFilingEvent(ctx, "filing.rejected", f)
			s.notifySubject(ctx, f.SubjectID, "Filing rejected",
				fmt.Sprintf("Your %s filing was rejected: %s", f.Type, reason))
		})
}

// RecordPayment moves an APPROVED filing to PAID. Terminal.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, paidAmount float64, reference string) (*filing.Filing, error) {
	return s.transition(ctx, id, filing.StatusPaid, []filing.Status{filing.StatusApproved},
		func(f *filing.Filing) {
			f.PaidAmount = paidAmount
			f.PaymentReference = reference
		},
		func(ctx context.Context, f *filing.Filing) {
			s.publisher.PublishFilingEvent(ctx, "filing.paid", f)
		})
}

// Escalate marks any active filing CRITICAL and always raises an
// operational alert. Unconditional: re-escalating an already escalated
// filing re-alerts rather than silently dropping.
func (s *Service) Escalate(ctx context.Context, id uuid.UUID, reason string) (*filing.Filing, error) {
	f, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find filing %s: %w", id, err)
	}
	if f.Status.IsTerminal() {
		return nil, fmt.Errorf("cannot escalate %s filing %s: %w", f.Status, id, sentinel.ErrInvalidState)
	}

	f.Priority = filing.PriorityCritical
	f.EscalationReason = reason
	f.UpdatedAt = s.now()
	if err := s.store.Update(ctx, f); err != nil {
		return nil, fmt.Errorf("update filing %s: %w", id, err)
	}

	s.alert(ctx, "Filing escalated",
		fmt.Sprintf("filing=%s type=%s subject=%s reason=%s", f.ID, f.Type, f.SubjectID, reason),
		alerts.SeverityCritical)
	s.publisher.PublishFilingEvent(ctx, "filing.escalated", f)
	return f, nil
}

// regulatorySubmissionTypes are the filing types whose submission failures
// carry zero tolerance: every failure is critical by policy, not by amount.
var regulatorySubmissionTypes = map[filing.Type]bool{
	filing.TypeSAR:   true,
	filing.TypeCTR:   true,
	filing.TypeBSA:   true,
	filing.TypeAML:   true,
	filing.TypeOFAC:  true,
	filing.TypeFINRA: true,
}

// RecordFilingFailure marks a regulatory submission FAILED and escalates
// immediately. OFAC and high-value SAR failures additionally hit the
// higher-severity channel.
func (s *Service) RecordFilingFailure(ctx context.Context, id uuid.UUID, reason string) (*filing.Filing, error) {
	f, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find filing %s: %w", id, err)
	}
	if !regulatorySubmissionTypes[f.Type] {
		return nil, fmt.Errorf("filing type %s is not a regulatory submission: %w", f.Type, sentinel.ErrValidation)
	}
	if f.Status.IsTerminal() {
		return nil, fmt.Errorf("cannot fail %s filing %s: %w", f.Status, id, sentinel.ErrInvalidState)
	}

	f.Status = filing.StatusFailed
	f.FailureReason = reason
	f.Priority = filing.PriorityCritical
	f.UpdatedAt = s.now()
	if err := s.store.Update(ctx, f); err != nil {
		return nil, fmt.Errorf("update filing %s: %w", id, err)
	}

	s.alert(ctx, "Regulatory filing failure",
		fmt.Sprintf("filing=%s type=%s subject=%s reason=%s", f.ID, f.Type, f.SubjectID, reason),
		alerts.SeverityCritical)
	if s.policy.EscalatedFailureType(f.Type, f.Amount) {
		s.alert(ctx, "Regulatory filing failure requires executive attention",
			fmt.Sprintf("filing=%s type=%s amount=%.2f reason=%s", f.ID, f.Type, f.Amount, reason),
			alerts.SeverityEmergency)
	}
	s.publisher.PublishFilingEvent(ctx, "filing.failed", f)
	return f, nil
}

// Amend opens a new filing linked to a closed one. Closed filings are
// archival: they never re-enter an active state.
func (s *Service) Amend(ctx context.Context, closedID uuid.UUID, req filing.SubmitRequest) (*filing.Filing, error) {
	prior, err := s.store.FindByID(ctx, closedID)
	if err != nil {
		return nil, fmt.Errorf("find filing %s: %w", closedID, err)
	}
	if !prior.Status.IsTerminal() {
		return nil, fmt.Errorf("filing %s is still active, amend only closed filings: %w", closedID, sentinel.ErrInvalidState)
	}
	req.AmendsID = closedID
	return s.Submit(ctx, req)
}

// Get returns a filing by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*filing.Filing, error) {
	f, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find filing %s: %w", id, err)
	}
	return f, nil
}

// transition loads the filing, checks the source-state precondition,
// applies the mutation, and persists under the optimistic version check.
// onCommit side effects run only after the update succeeds.
func (s *Service) transition(
	ctx context.Context,
	id uuid.UUID,
	to filing.Status,
	from []filing.Status,
	mutate func(*filing.Filing),
	onCommit func(context.Context, *filing.Filing),
) (*filing.Filing, error) {
	f, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find filing %s: %w", id, err)
	}

	legal := false
	for _, st := range from {
		if f.Status == st {
			legal = true
			break
		}
	}
	if !legal {
		return nil, fmt.Errorf("illegal transition %s -> %s for filing %s: %w", f.Status, to, id, sentinel.ErrInvalidState)
	}

	f.Status = to
	mutate(f)
	f.UpdatedAt = s.now()
	if err := s.store.Update(ctx, f); err != nil {
		return nil, fmt.Errorf("update filing %s: %w", id, err)
	}

	if onCommit != nil {
		onCommit(ctx, f)
	}
	s.logger.Info("filing transition",
		"filing_id", f.ID,
		"status", f.Status,
		"correlation_id", f.CorrelationID,
	)
	return f, nil
}

// alert raises an operator alert, logging instead of propagating failures.
func (s *Service) alert(ctx context.Context, title, body, severity string) {
	if err := s.notifier.SendAlert(ctx, title, body, severity); err != nil {
		s.logger.Error("CRITICAL: operator alert failed", "title", title, "error", err)
	}
}

// notifySubject sends a subject notification. Best-effort, but when
// escalateNotifyFailures is set a failure raises an operator alert instead
// of disappearing into the log.
func (s *Service) notifySubject(ctx context.Context, subjectID, title, body string) {
	err := s.notifier.SendToSubject(ctx, subjectID, title, body)
	if err == nil {
		return
	}
	s.logger.Error("subject notification failed", "subject_id", subjectID, "title", title, "error", err)
	if s.escalateNotifyFailures {
		s.alert(ctx, "Compliance notification delivery failed",
			fmt.Sprintf("subject=%s title=%s error=%v", subjectID, title, err),
			alerts.SeverityHigh)
	}
}

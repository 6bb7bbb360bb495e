package service

import (
	"context"
	"fmt"
	"time"

	"comply/internal/alerts"
	"comply/internal/filing"
)

// SweepOverdue scans active filings and escalates any whose deadline has
// passed. OVERDUE is derived, never stored; what persists is the CRITICAL
// priority and the escalation reason. The emergency alert is distinct from
// the standard escalation alert so on-call routing can treat blown
// regulatory deadlines differently.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active filings: %w", err)
	}

	now := s.now()
	overdue := 0
	for _, f := range active {
		if !f.Overdue(now) {
			continue
		}
		overdue++

		f.Priority = filing.PriorityCritical
		f.EscalationReason = "deadline passed"
		f.UpdatedAt = now
		if err := s.store.Update(ctx, f); err != nil {
			// A concurrent transition may have closed it; the next sweep
			// re-evaluates.
			s.logger.Error("overdue escalation update failed", "filing_id", f.ID, "error", err)
			continue
		}

		s.alert(ctx, "EMERGENCY: filing overdue",
			fmt.Sprintf("filing=%s type=%s subject=%s deadline=%s", f.ID, f.Type, f.SubjectID, f.Deadline.Format(time.RFC3339)),
			alerts.SeverityEmergency)
		s.publisher.PublishFilingEvent(ctx, "filing.overdue", f)
	}

	if overdue > 0 {
		s.logger.Warn("overdue sweep complete", "overdue", overdue, "active", len(active))
	}
	return overdue, nil
}

// RunOverdueSweeper runs SweepOverdue on an interval until the context is
// cancelled. Runs independently of single-event processing.
func (s *Service) RunOverdueSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepOverdue(ctx); err != nil {
				s.logger.Error("overdue sweep failed", "error", err)
			}
		}
	}
}

package filing

import (
	"strings"
	"time"
)

// Policy fixes the per-type deadline windows, priority bands, and alerting
// threshold. One table replaces the per-consumer constants the event types
// used to hand-roll.
type Policy struct {
	// Priority bands, exclusive lower bounds. Amounts above CriticalAbove
	// are CRITICAL, above HighAbove HIGH, above MediumAbove MEDIUM, else LOW.
	CriticalAbove float64
	HighAbove     float64
	MediumAbove   float64

	// HighValueAlertAbove triggers an out-of-band alert at submission.
	HighValueAlertAbove float64

	// Deadline windows by reason category.
	FraudWindow      time.Duration
	SystemErrWindow  time.Duration
	DisruptionWindow time.Duration
	DefaultWindow    time.Duration
}

// DefaultPolicy mirrors the regulatory processing SLAs.
func DefaultPolicy() Policy {
	return Policy{
		CriticalAbove:       50_000,
		HighAbove:           25_000,
		MediumAbove:         5_000,
		HighValueAlertAbove: 25_000,
		FraudWindow:         3 * 24 * time.Hour,
		SystemErrWindow:     5 * 24 * time.Hour,
		DisruptionWindow:    7 * 24 * time.Hour,
		DefaultWindow:       14 * 24 * time.Hour,
	}
}

// PriorityFor derives submission priority from amount and reason. Fraud and
// security-breach filings are never assigned below HIGH regardless of
// amount.
func (p Policy) PriorityFor(amount float64, reason string) Priority {
	var prio Priority
	switch {
	case amount > p.CriticalAbove:
		prio = PriorityCritical
	case amount > p.HighAbove:
		prio = PriorityHigh
	case amount > p.MediumAbove:
		prio = PriorityMedium
	default:
		prio = PriorityLow
	}
	if isFraudOrSecurity(reason) {
		prio = prio.AtLeast(PriorityHigh)
	}
	return prio
}

// DeadlineFor computes the filing deadline from its creation time and
// reason category.
func (p Policy) DeadlineFor(createdAt time.Time, reason string) time.Time {
	switch {
	case isFraudOrSecurity(reason):
		return createdAt.Add(p.FraudWindow)
	case containsFold(reason, "SYSTEM_ERROR"):
		return createdAt.Add(p.SystemErrWindow)
	case containsFold(reason, "SERVICE_DISRUPTION"):
		return createdAt.Add(p.DisruptionWindow)
	default:
		return createdAt.Add(p.DefaultWindow)
	}
}

// HighValueAlert reports whether a submission amount warrants an
// out-of-band alert.
func (p Policy) HighValueAlert(amount float64) bool {
	return amount > p.HighValueAlertAbove
}

// EscalatedFailureType reports whether a filing-submission failure for this
// type warrants the second, higher-severity notification channel. OFAC
// failures always do; SAR failures only when high-value.
func (p Policy) EscalatedFailureType(t Type, amount float64) bool {
	switch t {
	case TypeOFAC:
		return true
	case TypeSAR:
		return amount > p.HighAbove
	}
	return false
}

func isFraudOrSecurity(reason string) bool {
	return containsFold(reason, "FRAUD") || containsFold(reason, "SECURITY_BREACH")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToUpper(s), substr)
}

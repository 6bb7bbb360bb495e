package filing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_PriorityBands(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name   string
		amount float64
		reason string
		want   Priority
	}{
		{"small amount", 1_000, "LATE_FILING", PriorityLow},
		{"medium band", 9_500, "LATE_FILING", PriorityMedium},
		{"high band", 30_000, "LATE_FILING", PriorityHigh},
		{"critical band", 75_000, "LATE_FILING", PriorityCritical},
		{"band edge is exclusive", 5_000, "LATE_FILING", PriorityLow},
		{"fraud floor lifts low amounts", 100, "FRAUD_COMPENSATION", PriorityHigh},
		{"security breach floor", 100, "SECURITY_BREACH", PriorityHigh},
		{"fraud does not cap critical", 75_000, "FRAUD_COMPENSATION", PriorityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.PriorityFor(tt.amount, tt.reason))
		})
	}
}

func TestPolicy_PriorityMonotonicInAmount(t *testing.T) {
	p := DefaultPolicy()
	amounts := []float64{0, 4_999, 5_001, 24_999, 25_001, 49_999, 50_001, 1_000_000}
	prev := PriorityLow
	for _, amt := range amounts {
		got := p.PriorityFor(amt, "LATE_FILING")
		assert.GreaterOrEqual(t, priorityRank[got], priorityRank[prev],
			"priority must be non-decreasing in amount (amount=%v)", amt)
		prev = got
	}
}

func TestPolicy_DeadlineWindows(t *testing.T) {
	p := DefaultPolicy()
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		reason string
		days   int
	}{
		{"FRAUD_COMPENSATION", 3},
		{"SECURITY_BREACH", 3},
		{"SYSTEM_ERROR", 5},
		{"SERVICE_DISRUPTION", 7},
		{"LATE_FILING", 14},
		{"", 14},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			deadline := p.DeadlineFor(createdAt, tt.reason)
			assert.Equal(t, createdAt.AddDate(0, 0, tt.days), deadline)
			assert.True(t, deadline.After(createdAt), "deadline must follow creation")
		})
	}
}

func TestPolicy_EscalatedFailureType(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.EscalatedFailureType(TypeOFAC, 0), "every OFAC failure escalates")
	assert.True(t, p.EscalatedFailureType(TypeSAR, 30_000))
	assert.False(t, p.EscalatedFailureType(TypeSAR, 1_000))
	assert.False(t, p.EscalatedFailureType(TypeCTR, 1_000_000))
}

package screening

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType classifies the screened party.
type EntityType string

const (
	EntityIndividual   EntityType = "INDIVIDUAL"
	EntityOrganization EntityType = "ORGANIZATION"
	EntityVessel       EntityType = "VESSEL"
)

// RiskLevel is the caller-supplied risk context for the entity, used by the
// source policy and the action bands.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Entity is a party to screen against the configured match sources.
type Entity struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        EntityType `json:"type"`
	Country     string     `json:"country"`
	CrossBorder bool       `json:"cross_border"`
	Risk        RiskLevel  `json:"risk"`
}

// CacheKey derives the result-cache key. Two requests for the same
// (name, type, country) within the cache TTL reuse one screening.
func (e Entity) CacheKey() string {
	return fmt.Sprintf("screening:%s:%s:%s",
		normalizeName(e.Name),
		e.Type,
		strings.ToUpper(strings.TrimSpace(e.Country)),
	)
}

// SourceStatus records what a single source contributed to a screening.
// NO_RESULT (timeout, outage, open breaker) is never the same as a zero
// score: an incomplete screening must not read as clear.
type SourceStatus string

const (
	SourceReturned SourceStatus = "RESULT"
	SourceNoResult SourceStatus = "NO_RESULT"
)

// Action is the determined disposition, ordered from most to least severe.
type Action string

const (
	ActionBlockImmediate     Action = "BLOCK_IMMEDIATE"
	ActionBlockPendingReview Action = "BLOCK_PENDING_REVIEW"
	ActionFlagForReview      Action = "FLAG_FOR_REVIEW"
	ActionMonitor            Action = "MONITOR"
	ActionClear              Action = "CLEAR"
)

var actionRank = map[Action]int{
	ActionClear:              0,
	ActionMonitor:            1,
	ActionFlagForReview:      2,
	ActionBlockPendingReview: 3,
	ActionBlockImmediate:     4,
}

// AtLeast returns the more severe of a and min.
func (a Action) AtLeast(min Action) Action {
	if actionRank[a] < actionRank[min] {
		return min
	}
	return a
}

// Result is one consolidated screening outcome. Immutable once CompletedAt
// is set.
type Result struct {
	ScreeningID       uuid.UUID               `json:"screening_id"`
	EntityID          string                  `json:"entity_id"`
	PerSourceScores   map[string]float64      `json:"per_source_scores"`
	SourceStatuses    map[string]SourceStatus `json:"source_statuses"`
	ConsolidatedScore float64                 `json:"consolidated_score"`
	MatchFound        bool                    `json:"match_found"`
	Incomplete        bool                    `json:"incomplete"`
	ReviewRequired    bool                    `json:"review_required"`
	Action            Action                  `json:"action"`
	Justification     string                  `json:"justification,omitempty"`
	CompletedAt       time.Time               `json:"completed_at"`
}

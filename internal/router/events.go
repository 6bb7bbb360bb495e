package router

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"comply/internal/screening"
	"comply/pkg/platform/sentinel"
)

// FraudAlertEvent reports a confirmed fraud determination that obligates a
// suspicious-activity filing.
type FraudAlertEvent struct {
	AlertID       string    `json:"alert_id"`
	SubjectID     string    `json:"subject_id"`
	Amount        float64   `json:"amount"`
	FraudType     string    `json:"fraud_type"`
	Description   string    `json:"description"`
	DetectedAt    time.Time `json:"detected_at"`
	CorrelationID string    `json:"correlation_id"`
}

// CashDepositEvent reports one cash transaction for currency-transaction
// reporting and structuring detection.
type CashDepositEvent struct {
	TransactionID string    `json:"transaction_id"`
	SubjectID     string    `json:"subject_id"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Business      bool      `json:"business"` // received in trade or business
	DepositedAt   time.Time `json:"deposited_at"`
	CorrelationID string    `json:"correlation_id"`
}

// ScreeningRequestEvent asks for a sanctions screening of one entity, with
// the transaction context needed for a filing should the screening hit.
type ScreeningRequestEvent struct {
	RequestID     string           `json:"request_id"`
	Entity        screening.Entity `json:"entity"`
	Amount        float64          `json:"amount"`
	RequestedAt   time.Time        `json:"requested_at"`
	CorrelationID string           `json:"correlation_id"`
}

// FilingFailureEvent reports that an external regulatory submission failed.
type FilingFailureEvent struct {
	FilingID      uuid.UUID `json:"filing_id"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
	CorrelationID string    `json:"correlation_id"`
}

// decodeEvent unmarshals a payload into v, classifying malformed JSON as a
// validation failure so the pipeline dead-letters it without retry.
func decodeEvent(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("malformed event payload: %v: %w", err, sentinel.ErrValidation)
	}
	return nil
}

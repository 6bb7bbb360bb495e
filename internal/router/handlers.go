package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"comply/internal/alerts"
	"comply/internal/dedup"
	"comply/internal/filing"
	filingservice "comply/internal/filing/service"
	"comply/internal/platform/kafka/consumer"
	"comply/internal/screening"
	"comply/pkg/platform/sentinel"
)

// CTRThreshold is the single-transaction currency-transaction reporting
// threshold in USD.
const CTRThreshold = 10_000

// StructuringWindow is the lookback over which same-subject cash deposits
// aggregate toward the reporting threshold.
const StructuringWindow = 24 * time.Hour

// FraudAlertHandler turns confirmed fraud alerts into suspicious-activity
// filings.
type FraudAlertHandler struct {
	filings *filingservice.Service
	logger  *slog.Logger
}

// NewFraudAlertHandler constructs the handler.
func NewFraudAlertHandler(filings *filingservice.Service, logger *slog.Logger) *FraudAlertHandler {
	return &FraudAlertHandler{filings: filings, logger: logger}
}

// Fingerprint dedups on the alert identity so a re-published alert for the
// same detection is skipped even at a different offset.
func (h *FraudAlertHandler) Fingerprint(msg *consumer.Message) (dedup.Fingerprint, bool) {
	var ev FraudAlertEvent
	if err := decodeEvent(msg.Value, &ev); err != nil || ev.SubjectID == "" {
		return "", false
	}
	return dedup.FromSubject(ev.SubjectID, "fraud-alert", ev.DetectedAt), true
}

func (h *FraudAlertHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var ev FraudAlertEvent
	if err := decodeEvent(msg.Value, &ev); err != nil {
		return err
	}
	if ev.SubjectID == "" {
		return fmt.Errorf("fraud alert missing subject id: %w", sentinel.ErrValidation)
	}

	f, err := h.filings.Submit(ctx, filing.SubmitRequest{
		SubjectID:     ev.SubjectID,
		Type:          filing.TypeSAR,
		Amount:        ev.Amount,
		Reason:        fmt.Sprintf("FRAUD_ALERT:%s", ev.FraudType),
		CorrelationID: ev.CorrelationID,
	})
	if err != nil {
		return fmt.Errorf("submit SAR for fraud alert %s: %w", ev.AlertID, err)
	}

	h.logger.Info("fraud alert filed",
		"alert_id", ev.AlertID,
		"filing_id", f.ID,
		"subject_id", ev.SubjectID,
		"priority", f.Priority,
	)
	return nil
}

// DepositLedger is the slice of the filing store the cash-deposit handler
// needs: every deposit is ledgered so the structuring check can see activity
// that never produced a filing of its own.
type DepositLedger interface {
	RecordCashDeposit(ctx context.Context, transactionID, subjectID string, amount float64, at time.Time) error
	SumRecentAmountsBySubject(ctx context.Context, subjectID string, since time.Time) (float64, error)
}

// CashDepositHandler files currency-transaction reports for deposits at or
// over the threshold, and detects structuring: same-subject deposits that
// individually stay under the threshold but aggregate over it within the
// lookback window.
type CashDepositHandler struct {
	filings  *filingservice.Service
	deposits DepositLedger
	logger   *slog.Logger
	now      func() time.Time
}

// NewCashDepositHandler constructs the handler.
func NewCashDepositHandler(filings *filingservice.Service, deposits DepositLedger, logger *slog.Logger) *CashDepositHandler {
	return &CashDepositHandler{filings: filings, deposits: deposits, logger: logger, now: time.Now}
}

// Fingerprint dedups on the transaction identity.
func (h *CashDepositHandler) Fingerprint(msg *consumer.Message) (dedup.Fingerprint, bool) {
	var ev CashDepositEvent
	if err := decodeEvent(msg.Value, &ev); err != nil || ev.TransactionID == "" {
		return "", false
	}
	return dedup.FromSubject(ev.TransactionID, "cash-deposit", ev.DepositedAt), true
}

func (h *CashDepositHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var ev CashDepositEvent
	if err := decodeEvent(msg.Value, &ev); err != nil {
		return err
	}
	if ev.SubjectID == "" {
		return fmt.Errorf("cash deposit missing subject id: %w", sentinel.ErrValidation)
	}
	if ev.Amount <= 0 {
		return fmt.Errorf("cash deposit amount must be positive: %w", sentinel.ErrValidation)
	}

	depositedAt := ev.DepositedAt
	if depositedAt.IsZero() {
		depositedAt = h.now()
	}
	if err := h.deposits.RecordCashDeposit(ctx, ev.TransactionID, ev.SubjectID, ev.Amount, depositedAt); err != nil {
		return fmt.Errorf("ledger cash deposit %s: %w: %w", ev.TransactionID, err, sentinel.ErrTransient)
	}

	if ev.Amount >= CTRThreshold {
		filingType := filing.TypeCTR
		if ev.Business {
			filingType = filing.TypeForm8300
		}
		f, err := h.filings.Submit(ctx, filing.SubmitRequest{
			SubjectID:     ev.SubjectID,
			Type:          filingType,
			Amount:        ev.Amount,
			Reason:        "CASH_TRANSACTION_OVER_THRESHOLD",
			CorrelationID: ev.CorrelationID,
		})
		if err != nil {
			return fmt.Errorf("submit %s for transaction %s: %w", filingType, ev.TransactionID, err)
		}
		h.logger.Info("currency transaction filed",
			"transaction_id", ev.TransactionID,
			"filing_id", f.ID,
			"type", filingType,
			"amount", ev.Amount,
		)
		return nil
	}

	// Sub-threshold deposit: aggregate the subject's ledgered activity,
	// current deposit included, to catch deposits kept deliberately under
	// the reporting line.
	windowSum, err := h.deposits.SumRecentAmountsBySubject(ctx, ev.SubjectID, depositedAt.Add(-StructuringWindow))
	if err != nil {
		return fmt.Errorf("sum recent deposits for %s: %w: %w", ev.SubjectID, err, sentinel.ErrTransient)
	}
	if windowSum < CTRThreshold {
		h.logger.Debug("cash deposit below reporting threshold",
			"transaction_id", ev.TransactionID,
			"amount", ev.Amount,
			"window_sum", windowSum,
		)
		return nil
	}

	f, err := h.filings.Submit(ctx, filing.SubmitRequest{
		SubjectID:     ev.SubjectID,
		Type:          filing.TypeSAR,
		Amount:        ev.Amount,
		Reason:        "STRUCTURING_PATTERN",
		CorrelationID: ev.CorrelationID,
	})
	if err != nil {
		return fmt.Errorf("submit structuring SAR for %s: %w", ev.SubjectID, err)
	}
	h.logger.Warn("structuring pattern flagged",
		"transaction_id", ev.TransactionID,
		"filing_id", f.ID,
		"subject_id", ev.SubjectID,
		"amount", ev.Amount,
		"window_sum", windowSum,
	)
	return nil
}

// ScreeningRequestHandler runs sanctions screenings and opens OFAC filings
// for confirmed matches.
type ScreeningRequestHandler struct {
	screener *screening.Service
	filings  *filingservice.Service
	notifier alerts.Notifier
	logger   *slog.Logger
}

// NewScreeningRequestHandler constructs the handler.
func NewScreeningRequestHandler(screener *screening.Service, filings *filingservice.Service, notifier alerts.Notifier, logger *slog.Logger) *ScreeningRequestHandler {
	return &ScreeningRequestHandler{screener: screener, filings: filings, notifier: notifier, logger: logger}
}

func (h *ScreeningRequestHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var ev ScreeningRequestEvent
	if err := decodeEvent(msg.Value, &ev); err != nil {
		return err
	}
	if ev.Entity.Name == "" {
		return fmt.Errorf("screening request missing entity name: %w", sentinel.ErrValidation)
	}

	result, err := h.screener.Screen(ctx, ev.Entity)
	if err != nil {
		// Total source failure: the fail-safe result exists, but the
		// request still escalates through the dead-letter path.
		return fmt.Errorf("screen entity %s: %w", ev.Entity.ID, err)
	}

	if result.Action == screening.ActionBlockImmediate {
		if alertErr := h.notifier.SendAlert(ctx,
			"Sanctions match requires immediate block",
			fmt.Sprintf("entity=%s screening=%s score=%.1f", ev.Entity.ID, result.ScreeningID, result.ConsolidatedScore),
			alerts.SeverityCritical); alertErr != nil {
			h.logger.Error("CRITICAL: sanctions block alert failed", "screening_id", result.ScreeningID, "error", alertErr)
		}
	}

	if result.MatchFound {
		f, err := h.filings.Submit(ctx, filing.SubmitRequest{
			SubjectID:     ev.Entity.ID,
			Type:          filing.TypeOFAC,
			Amount:        ev.Amount,
			Reason:        fmt.Sprintf("SANCTIONS_MATCH:%s", result.Action),
			CorrelationID: ev.CorrelationID,
		})
		if err != nil {
			return fmt.Errorf("submit OFAC filing for entity %s: %w", ev.Entity.ID, err)
		}
		h.logger.Info("sanctions match filed",
			"entity_id", ev.Entity.ID,
			"filing_id", f.ID,
			"action", result.Action,
		)
	}

	if result.ReviewRequired {
		if alertErr := h.notifier.SendAlert(ctx,
			"Incomplete screening requires manual review",
			fmt.Sprintf("entity=%s screening=%s action=%s", ev.Entity.ID, result.ScreeningID, result.Action),
			alerts.SeverityHigh); alertErr != nil {
			h.logger.Error("incomplete-screening alert failed", "screening_id", result.ScreeningID, "error", alertErr)
		}
	}

	h.logger.Info("screening resolved",
		"entity_id", ev.Entity.ID,
		"screening_id", result.ScreeningID,
		"action", result.Action,
		"incomplete", result.Incomplete,
	)
	return nil
}

// FilingFailureHandler applies external submission failures to the state
// machine, which owns the zero-tolerance escalation policy.
type FilingFailureHandler struct {
	filings *filingservice.Service
	logger  *slog.Logger
}

// NewFilingFailureHandler constructs the handler.
func NewFilingFailureHandler(filings *filingservice.Service, logger *slog.Logger) *FilingFailureHandler {
	return &FilingFailureHandler{filings: filings, logger: logger}
}

func (h *FilingFailureHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var ev FilingFailureEvent
	if err := decodeEvent(msg.Value, &ev); err != nil {
		return err
	}
	if ev.FilingID == uuid.Nil {
		return fmt.Errorf("filing failure missing filing id: %w", sentinel.ErrValidation)
	}

	f, err := h.filings.RecordFilingFailure(ctx, ev.FilingID, ev.Reason)
	if err != nil {
		return fmt.Errorf("record filing failure %s: %w", ev.FilingID, err)
	}
	h.logger.Error("CRITICAL: regulatory filing failure recorded",
		"filing_id", f.ID,
		"type", f.Type,
		"reason", ev.Reason,
	)
	return nil
}

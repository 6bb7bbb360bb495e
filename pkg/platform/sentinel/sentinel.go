package sentinel

import "errors"

// Sentinel errors for infrastructure and processing facts. Stores, clients,
// and the resilience pipeline return these (optionally wrapped) so callers
// can classify failures without string matching.
//
// Classification drives retry behavior:
// - ErrValidation: malformed or incomplete input, never retried
// - ErrTransient: I/O or timeout, safe to retry with backoff
// - ErrNotFound: entity does not exist in store
// - ErrConflict: concurrent modification lost the version race, caller may retry
// - ErrInvalidState: entity in wrong state for requested transition
// - ErrComplianceCritical: failure that must be escalated regardless of retry outcome
// - ErrUnavailable: dependency temporarily unavailable
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrValidation         = errors.New("validation failed")
	ErrTransient          = errors.New("transient failure")
	ErrInvalidState       = errors.New("invalid state")
	ErrComplianceCritical = errors.New("compliance critical")
	ErrUnavailable        = errors.New("unavailable")
)

// IsRetryable reports whether an error is worth retrying. Validation and
// state errors are deterministic; retrying them only burns attempts.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrNotFound):
		return false
	}
	return true
}

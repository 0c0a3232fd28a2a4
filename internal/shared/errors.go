package shared

import "errors"

// Error codes surfaced in API error bodies.
const (
	CodeValidation       = "VALIDATION"
	CodeNotFound         = "NOT_FOUND"
	CodeDuplicate        = "DUPLICATE"
	CodeInvalidState     = "INVALID_STATE"
	CodePeriodClosed     = "PERIOD_CLOSED"
	CodeUnbalancedPeriod = "UNBALANCED_PERIOD"
	CodeNotReconciled    = "NOT_RECONCILED"
	CodeInternal         = "INTERNAL"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness conflict.
	ErrDuplicate = errors.New("already exists")
	// ErrInvalidState indicates an illegal lifecycle transition.
	ErrInvalidState = errors.New("invalid state transition")
)

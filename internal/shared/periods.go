package shared

import "errors"

// Period statuses reused outside the periods module.
const (
	PeriodStatusOpen   = "OPEN"
	PeriodStatusClosed = "CLOSED"
	PeriodStatusLocked = "LOCKED"
)

// ErrInvalidPeriodTransition indicates status change not allowed.
var ErrInvalidPeriodTransition = errors.New("period transition invalid")

// ValidatePeriodTransition checks transitions according to policy.
// Open periods may close, closed periods may reopen or lock, and a
// locked period is terminal.
func ValidatePeriodTransition(current, target string) error {
	if current == target {
		return nil
	}
	switch current {
	case PeriodStatusOpen:
		if target == PeriodStatusClosed {
			return nil
		}
	case PeriodStatusClosed:
		if target == PeriodStatusOpen || target == PeriodStatusLocked {
			return nil
		}
	}
	return ErrInvalidPeriodTransition
}

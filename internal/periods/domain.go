package periods

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput      = errors.New("periods: invalid input")
	ErrPeriodNotFound    = errors.New("periods: period not found")
	ErrDuplicatePeriod   = errors.New("periods: period already exists")
	ErrInvalidTransition = errors.New("periods: invalid status transition")
	ErrUnbalancedPeriod  = errors.New("periods: trial balance out of balance")
)

// Period is one fiscal month bucket. Postings are accepted only while
// the period is open; a locked period never reopens.
type Period struct {
	ID          int64      `json:"id"`
	FiscalYear  int        `json:"fiscalYear"`
	FiscalMonth int        `json:"fiscalMonth"`
	StartDate   time.Time  `json:"startDate"`
	EndDate     time.Time  `json:"endDate"`
	Status      string     `json:"status"`
	ClosedBy    string     `json:"closedBy,omitempty"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// CreateInput carries the fields needed to open a new fiscal period.
type CreateInput struct {
	FiscalYear  int
	FiscalMonth int
	Actor       string
}

func (in CreateInput) Validate() error {
	if in.FiscalYear < 1900 || in.FiscalYear > 2200 {
		return fmt.Errorf("%w: fiscal year out of range", ErrInvalidInput)
	}
	if in.FiscalMonth < 1 || in.FiscalMonth > 12 {
		return fmt.Errorf("%w: fiscal month must be 1..12", ErrInvalidInput)
	}
	return nil
}

// Bounds returns the calendar start and end dates of the period.
func (in CreateInput) Bounds() (time.Time, time.Time) {
	start := time.Date(in.FiscalYear, time.Month(in.FiscalMonth), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
	return start, end
}

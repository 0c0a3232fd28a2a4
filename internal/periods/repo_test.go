package periods

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolationDetectsWrappedPgError(t *testing.T) {
	dup := fmt.Errorf("insert period: %w", &pgconn.PgError{Code: "23505", ConstraintName: "fiscal_periods_year_month_key"})
	if !isUniqueViolation(dup) {
		t.Fatal("expected 23505 to be detected through wrapping")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "40001"}) {
		t.Fatal("serialization failure must not map to duplicate")
	}
}

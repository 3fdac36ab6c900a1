package db

import (
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// pgtype conversion helpers shared by the writer and tests.

func NumericFromDecimal(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{Valid: false}
	}
	var num pgtype.Numeric
	// decimal's canonical string form is always scannable.
	_ = num.Scan(d.String())
	return num
}

func TextFromString(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: sanitizeUTF8(s), Valid: true}
}

// DateFromString accepts the two date formats observed in disclosure files.
// An unparseable or empty value becomes NULL rather than failing the load.
func DateFromString(s string) pgtype.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Date{Valid: false}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse("01/02/2006", s)
		if err != nil {
			return pgtype.Date{Valid: false}
		}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// sanitizeUTF8 replaces invalid UTF-8 bytes with spaces.
func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, " ")
}

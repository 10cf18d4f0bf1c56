package database

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// Helper functions for type conversion

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgTextPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func toPgFloat8(f *float64) pgtype.Float8 {
	if f == nil {
		return pgtype.Float8{Valid: false}
	}
	return pgtype.Float8{Float64: *f, Valid: true}
}

func toPgTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil || t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// toPgDate parses a YYYY-MM-DD record date.
func toPgDate(s string) (pgtype.Date, error) {
	t, err := time.Parse(core.DateLayout, s)
	if err != nil {
		return pgtype.Date{}, fmt.Errorf("invalid record date %q: %w", s, err)
	}
	return pgtype.Date{Time: t, Valid: true}, nil
}

func toPgDates(dates []string) ([]pgtype.Date, error) {
	out := make([]pgtype.Date, 0, len(dates))
	for _, d := range dates {
		pd, err := toPgDate(d)
		if err != nil {
			return nil, err
		}
		out = append(out, pd)
	}
	return out, nil
}

func fromPgText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

func fromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

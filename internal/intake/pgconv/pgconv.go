// Package pgconv isolates Postgres scalar conversions behind plain-Go
// helpers, the same separation the teacher keeps in
// internal/core/convert.go (ToPg* functions) so that internal/intake/model
// never has to import pgx/pgtype directly.
package pgconv

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// UUID converts a uuid.UUID to pgtype.UUID. The nil UUID converts to an
// invalid (NULL) value, matching ToPgUUID's empty-string handling.
func UUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}

// UUIDPtr converts an optional UUID (nil pointer means absent).
func UUIDPtr(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{Valid: false}
	}
	return UUID(*id)
}

// ToUUID converts a pgtype.UUID back to a uuid.UUID, returning uuid.Nil
// when the source is not valid.
func ToUUID(u pgtype.UUID) uuid.UUID {
	if !u.Valid {
		return uuid.Nil
	}
	return uuid.UUID(u.Bytes)
}

// Text converts a string to pgtype.Text, treating a blank string as NULL.
func Text(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToText converts a pgtype.Text back to a string, returning "" for NULL.
func ToText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// Timestamptz converts a time.Time to pgtype.Timestamptz.
func Timestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

// TimestamptzPtr converts an optional time.
func TimestamptzPtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return Timestamptz(*t)
}

// ToTime converts a pgtype.Timestamptz back to *time.Time, nil for NULL.
func ToTime(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	tm := t.Time
	return &tm
}

// Int4 converts an int to pgtype.Int4.
func Int4(i int) pgtype.Int4 {
	return pgtype.Int4{Int32: int32(i), Valid: true}
}

// Int8 converts an int64 to pgtype.Int8.
func Int8(i int64) pgtype.Int8 {
	return pgtype.Int8{Int64: i, Valid: true}
}

// Numeric converts an ownership-share-style percentage (0-100, up to two
// decimal places) to pgtype.Numeric. Returns an invalid value on parse
// failure so callers can surface a Level-1 structural diagnostic.
func Numeric(s string) (pgtype.Numeric, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Numeric{Valid: false}, false
	}
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{Valid: false}, false
	}
	return n, true
}

// Bool converts a loosely-typed yes/no style string to pgtype.Bool, the
// same accepted vocabulary as the teacher's ToPgBool.
func Bool(s string) (pgtype.Bool, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "true", "t", "yes", "y", "1":
		return pgtype.Bool{Bool: true, Valid: true}, true
	case "false", "f", "no", "n", "0":
		return pgtype.Bool{Bool: false, Valid: true}, true
	default:
		return pgtype.Bool{Valid: false}, false
	}
}

// TextArray converts a string slice to pgtype.FlatArray-compatible plain
// []string; pgx encodes []string to a Postgres text[] natively, so this
// exists only to make call sites explicit about the conversion boundary.
func TextArray(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

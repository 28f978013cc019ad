package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation    = "23505"
	sqliteUniquePrefix   = "UNIQUE constraint failed: "
	pgUniqueMessageToken = "duplicate key value"
)

// UniqueConstraint pairs a Postgres unique index with the columns SQLite
// names when the same index is violated.
type UniqueConstraint struct {
	Name    string
	Columns string
}

// Violated reports whether err is a unique violation of this constraint
// under either driver.
func (c UniqueConstraint) Violated(err error) bool {
	return IsUniqueViolation(err, c.Name) || IsUniqueColumnViolation(err, c.Columns)
}

// IsUniqueViolation reports whether err is a unique violation. When
// constraintName is set only a violation of that constraint matches.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation && (constraintName == "" || pgErr.ConstraintName == constraintName)
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, pgUniqueMessageToken) && strings.Contains(msg, `"`+constraintName+`"`)
	}
	return strings.Contains(msg, pgUniqueMessageToken) || strings.Contains(msg, sqliteUniquePrefix)
}

// IsUniqueColumnViolation matches SQLite's wording, which names the violated
// columns as "table.column[, table.column]" instead of the index.
func IsUniqueColumnViolation(err error, columns string) bool {
	if err == nil || columns == "" {
		return false
	}
	msg := err.Error()
	idx := strings.Index(msg, sqliteUniquePrefix)
	if idx < 0 {
		return false
	}
	reported := msg[idx+len(sqliteUniquePrefix):]
	reported, _, _ = strings.Cut(reported, "\n")
	reported, _, _ = strings.Cut(reported, " (")
	return strings.TrimSpace(reported) == columns
}

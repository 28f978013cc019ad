package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Database failure classes reported in ErrorDump.DBKind.
const (
	DBKindNotFound   = "not_found"
	DBKindDuplicate  = "duplicate_key"
	DBKindForeignKey = "foreign_key"
	DBKindCheck      = "check_violation"
)

// ErrorDump flattens an error chain for structured logs. The PG fields are
// filled from either pgx or lib/pq errors.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	DBKind       string `json:"db_kind,omitempty"`
	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	}

	d.DBKind = pgKind(d.PGCode)
	if d.DBKind == "" {
		d.DBKind = gormKind(err)
	}
	return d
}

// Fields returns the dump as log fields, leaving out empty database columns.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_chain": d.Chain,
	}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	for key, value := range map[string]string{
		"db_kind":       d.DBKind,
		"pg_code":       d.PGCode,
		"pg_constraint": d.PGConstraint,
		"pg_table":      d.PGTable,
		"pg_column":     d.PGColumn,
		"pg_detail":     d.PGDetail,
		"pg_message":    d.PGMessage,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}

func pgKind(code string) string {
	switch code {
	case "23505":
		return DBKindDuplicate
	case "23503":
		return DBKindForeignKey
	case "23514":
		return DBKindCheck
	default:
		return ""
	}
}

func gormKind(err error) string {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return DBKindNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return DBKindDuplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return DBKindForeignKey
	default:
		return ""
	}
}

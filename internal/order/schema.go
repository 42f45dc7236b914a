package order

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// isMissingColumnErr reports whether err indicates the target relation lacks
// a column the write referenced, i.e. the database runs an older schema than
// the binary expects. Matches the Postgres undefined_column SQLSTATE plus
// the error texts surfaced by proxies that cache schemas.
func isMissingColumnErr(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42703" {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "schema cache") {
		return true
	}
	return strings.Contains(msg, "column") &&
		(strings.Contains(msg, "does not exist") || strings.Contains(msg, "could not find"))
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// Used only for logging; the creator re-queries on any insert error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate key")
}

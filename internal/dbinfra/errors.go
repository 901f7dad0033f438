package dbinfra

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Class groups driver errors by how callers should react to them.
type Class int

const (
	// ClassOther is any error not covered below.
	ClassOther Class = iota
	// ClassConstraint is a uniqueness, foreign key, not-null or check violation.
	ClassConstraint
	// ClassExhausted means the server refused the connection for lack of
	// capacity or the database was too busy to serve it.
	ClassExhausted
)

// Postgres SQLSTATE codes.
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgTooManyConnections  = "53300"
)

// MySQL server error numbers.
const (
	myTooManyConnections = 1040
	myBadNull            = 1048
	myDupEntry           = 1062
	myRowIsReferenced    = 1451
	myNoReferencedRow    = 1452
)

// Classify inspects err for a known driver error.
func Classify(err error) Class {
	if err == nil {
		return ClassOther
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgres(pgErr.Code)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgres(string(pqErr.Code))
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case myBadNull, myDupEntry, myRowIsReferenced, myNoReferencedRow:
			return ClassConstraint
		case myTooManyConnections:
			return ClassExhausted
		}
		return ClassOther
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrConstraint:
			return ClassConstraint
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return ClassExhausted
		}
		return ClassOther
	}

	return ClassOther
}

func classifyPostgres(code string) Class {
	switch code {
	case pgNotNullViolation, pgForeignKeyViolation, pgUniqueViolation, pgCheckViolation:
		return ClassConstraint
	case pgTooManyConnections:
		return ClassExhausted
	}
	return ClassOther
}

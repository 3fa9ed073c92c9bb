package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Connect opens a connection pool to the PostgreSQL database.
// Upgrade scheduling holds row locks for the duration of a transaction,
// so the pool is kept modest to bound lock contention.
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// isInvalidUUID reports whether err is Postgres rejecting a value it cannot
// parse as a uuid (invalid_text_representation, 22P02). Lets callers turn a
// malformed id into a validation failure instead of a server error.
func isInvalidUUID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}

// isUniqueViolation reports whether err is a unique constraint violation
// (23505), the signature of losing an insert race.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

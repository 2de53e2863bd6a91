// Package sqlstore persists reservations, payment outcomes and intakes in
// postgres or sqlite3 through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// lib/pq errorCodeNames
// https://github.com/lib/pq/blob/master/error.go#L178
const uniqueViolation = "23505"

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code == uniqueViolation
	}
	var liteerr sqlite3.Error
	if errors.As(err, &liteerr) {
		return liteerr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteerr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// insert runs a named insert inside its own transaction, mapping unique
// violations onto conflict.
func (s *Store) insert(ctx context.Context, query string, arg interface{}, conflict error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.NamedExecContext(ctx, query, arg); err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			return conflict
		}
		return err
	}

	return tx.Commit()
}

func notFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}

// Package repository persists tickets, their audit trail and staff accounts.
// Each store has a PostgreSQL implementation and an in-memory twin used when
// no database is configured and in tests.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("repository: not found")

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// validID filters ids that could never match a uuid column before they reach
// the database.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

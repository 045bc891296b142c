// Package sqlc holds the manifest's generated-style query layer. It is
// hand-authored in the shape `sqlc generate` would have produced (see
// the teacher's internal/database/generate.go), since the sqlc code
// generator itself cannot be invoked here.
package sqlc

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, letting every query
// method run standalone or inside a caller-managed transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries wraps a DBTX with typed manifest operations.
type Queries struct {
	db DBTX
}

// New builds a Queries over db (or a tx, via WithTx).
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to tx, for atomic multi-statement
// operations.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

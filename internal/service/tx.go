package service

import (
	"context"
	"database/sql"
)

// SQLTransactor runs functions inside *sql.DB transactions.
type SQLTransactor struct {
	DB *sql.DB
}

// InTx begins a transaction, runs fn and commits when fn succeeds.
func (t SQLTransactor) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

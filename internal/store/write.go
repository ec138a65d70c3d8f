package store

import (
	"context"
	"fmt"

	"github.com/roach88/storekit/internal/value"
)

// Create inserts a new instance in its own transaction.
func (s *Store) Create(ctx context.Context, alias string, fields value.Object) (Record, error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return Record{}, err
	}
	defer tx.Rollback()

	rec, err := tx.Create(ctx, alias, fields)
	if err != nil {
		return Record{}, err
	}
	if _, err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Update applies a partial update in its own transaction. See Tx.Update.
func (s *Store) Update(ctx context.Context, alias string, id int64, expected *int64, fields value.Object) (Record, error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return Record{}, err
	}
	defer tx.Rollback()

	rec, err := tx.Update(ctx, alias, id, expected, fields)
	if err != nil {
		return Record{}, err
	}
	if _, err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Delete removes an instance in its own transaction. See Tx.Delete.
func (s *Store) Delete(ctx context.Context, alias string, id int64, expected *int64) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.Delete(ctx, alias, id, expected); err != nil {
		return err
	}
	if _, err := tx.Commit(ctx); err != nil {
		return err
	}
	return nil
}

// runMigration applies fn in a transaction labelled name.
func (s *Store) runMigration(ctx context.Context, name string, fn func(*MigrationTx) error) (State, error) {
	tx, err := s.begin(ctx, name)
	if err != nil {
		return State{}, err
	}
	defer tx.Rollback()

	if err := fn(&MigrationTx{ctx: ctx, tx: tx}); err != nil {
		return State{}, fmt.Errorf("migration %s: %w", name, err)
	}
	state, err := tx.Commit(ctx)
	if err != nil {
		return State{}, fmt.Errorf("migration %s: %w", name, err)
	}
	return state, nil
}

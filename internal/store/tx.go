package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/storekit/internal/entity"
	"github.com/roach88/storekit/internal/value"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is a write transaction. It holds the store's commit lock until
// Commit or Rollback; always finish a Tx, usually with a deferred Rollback.
//
//	tx, err := s.Begin(ctx)
//	if err != nil { ... }
//	defer tx.Rollback()
//	rec, err := tx.Create(ctx, "widget", fields)
//	...
//	state, err := tx.Commit(ctx)
type Tx struct {
	s         *Store
	tx        *sql.Tx
	migration string
	changes   []Change
	done      bool
}

// Begin starts a write transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	return s.begin(ctx, "")
}

func (s *Store) begin(ctx context.Context, migration string) (*Tx, error) {
	s.commitMu.Lock()
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.commitMu.Unlock()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{s: s, tx: sqlTx, migration: migration}, nil
}

// Get reads an instance as seen by this transaction.
func (t *Tx) Get(ctx context.Context, alias string, id int64) (Record, error) {
	if t.done {
		return Record{}, ErrTxDone
	}
	if _, err := t.s.descriptor(alias); err != nil {
		return Record{}, err
	}
	return getRecord(ctx, t.tx, alias, id)
}

// List reads all instances of alias as seen by this transaction,
// ordered by id.
func (t *Tx) List(ctx context.Context, alias string) ([]Record, error) {
	if t.done {
		return nil, ErrTxDone
	}
	if _, err := t.s.descriptor(alias); err != nil {
		return nil, err
	}
	return listRecords(ctx, t.tx, alias)
}

// Create inserts a new instance with a fresh id and version 1.
// Null values are not stored.
func (t *Tx) Create(ctx context.Context, alias string, fields value.Object) (Record, error) {
	if t.done {
		return Record{}, ErrTxDone
	}
	desc, err := t.s.descriptor(alias)
	if err != nil {
		return Record{}, err
	}
	if err := checkFields(desc, fields); err != nil {
		return Record{}, err
	}

	stored := value.Object{}
	for k, v := range fields {
		if !value.IsNull(v) {
			stored[k] = v
		}
	}

	var id int64
	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO id_sequences (alias, last_id) VALUES (?, 1)
		ON CONFLICT(alias) DO UPDATE SET last_id = last_id + 1
		RETURNING last_id
	`, alias).Scan(&id)
	if err != nil {
		return Record{}, fmt.Errorf("create %s: next id: %w", alias, err)
	}

	rec := Record{Alias: alias, ID: id, Version: 1, Fields: stored}
	if err := t.insert(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("create %s: %w", alias, err)
	}
	t.record(ChangeCreate, rec)
	return cloneRecord(rec), nil
}

// Update merges fields into an existing instance and increments its
// version. A Null value removes the field. When expected is non-nil the
// update only applies if the stored version equals *expected.
func (t *Tx) Update(ctx context.Context, alias string, id int64, expected *int64, fields value.Object) (Record, error) {
	if t.done {
		return Record{}, ErrTxDone
	}
	desc, err := t.s.descriptor(alias)
	if err != nil {
		return Record{}, err
	}
	if err := checkFields(desc, fields); err != nil {
		return Record{}, err
	}

	current, err := t.current(ctx, alias, id, expected)
	if err != nil {
		return Record{}, err
	}

	merged := current.Fields.Clone()
	for k, v := range fields {
		if value.IsNull(v) {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return t.write(ctx, current, merged)
}

// replace overwrites the full field set of an instance. Used by
// migrations, which may drop fields that are no longer declared.
func (t *Tx) replace(ctx context.Context, alias string, id int64, fields value.Object) (Record, error) {
	if t.done {
		return Record{}, ErrTxDone
	}
	desc, err := t.s.descriptor(alias)
	if err != nil {
		return Record{}, err
	}
	if err := checkFields(desc, fields); err != nil {
		return Record{}, err
	}
	current, err := t.current(ctx, alias, id, nil)
	if err != nil {
		return Record{}, err
	}

	stored := value.Object{}
	for k, v := range fields {
		if !value.IsNull(v) {
			stored[k] = v
		}
	}
	return t.write(ctx, current, stored)
}

// Delete removes an instance. When expected is non-nil the delete only
// applies if the stored version equals *expected.
func (t *Tx) Delete(ctx context.Context, alias string, id int64, expected *int64) error {
	if t.done {
		return ErrTxDone
	}
	if _, err := t.s.descriptor(alias); err != nil {
		return err
	}
	current, err := t.current(ctx, alias, id, expected)
	if err != nil {
		return err
	}

	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM entities WHERE alias = ? AND id = ? AND version = ?
	`, alias, id, current.Version)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", alias, id, err)
	}
	if err := expectOneRow(res); err != nil {
		return fmt.Errorf("delete %s %d: %w", alias, id, err)
	}

	t.record(ChangeDelete, Record{Alias: alias, ID: id, Version: current.Version + 1})
	return nil
}

// Commit verifies and commits the transaction, then notifies observers.
// A rejected change rolls the transaction back and returns a
// *VerificationError.
func (t *Tx) Commit(ctx context.Context) (State, error) {
	if t.done {
		return State{}, ErrTxDone
	}
	t.done = true
	defer t.s.commitMu.Unlock()

	for _, ch := range t.changes {
		for _, v := range t.s.verifiers {
			if err := v.Verify(ctx, ch); err != nil {
				t.tx.Rollback()
				return State{}, &VerificationError{Plugin: v.Name(), Alias: ch.Alias, ID: ch.ID, Err: err}
			}
		}
	}

	state := State{
		TxID:        t.s.newTx(),
		CommittedAt: t.s.now().UTC(),
		Migration:   t.migration,
		Changes:     len(t.changes),
	}
	if err := t.log(ctx, &state); err != nil {
		t.tx.Rollback()
		return State{}, fmt.Errorf("commit: %w", err)
	}
	if err := t.tx.Commit(); err != nil {
		return State{}, fmt.Errorf("commit: %w", err)
	}

	t.s.logger.Debug("transaction committed",
		"seq", state.Seq,
		"tx_id", state.TxID,
		"changes", state.Changes,
		"migration", state.Migration,
	)

	commit := Commit{State: state, Changes: t.changes}
	for _, o := range t.s.observers {
		o.Committed(commit)
	}
	return state, nil
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.s.commitMu.Unlock()
	return t.tx.Rollback()
}

// log writes the transaction row and its changes.
func (t *Tx) log(ctx context.Context, state *State) error {
	var migration sql.NullString
	if state.Migration != "" {
		migration = sql.NullString{String: state.Migration, Valid: true}
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (tx_id, committed_at, migration)
		VALUES (?, ?, ?)
	`, state.TxID.String(), formatTime(state.CommittedAt), migration)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("transaction seq: %w", err)
	}
	state.Seq = seq

	for i, ch := range t.changes {
		var fields sql.NullString
		if ch.Kind != ChangeDelete {
			data, err := marshalFields(ch.Fields)
			if err != nil {
				return err
			}
			fields = sql.NullString{String: data, Valid: true}
		}
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO changes (seq, ordinal, kind, alias, id, version, fields)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, seq, i, string(ch.Kind), ch.Alias, ch.ID, ch.Version, fields)
		if err != nil {
			return fmt.Errorf("insert change: %w", err)
		}
	}

	if state.Migration != "" && state.Migration != InitializerName {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO migrations (name, seq, applied_at) VALUES (?, ?, ?)
		`, state.Migration, seq, formatTime(state.CommittedAt))
		if err != nil {
			return fmt.Errorf("mark migration %s applied: %w", state.Migration, err)
		}
	}
	return nil
}

// current loads an instance and checks the expected version.
func (t *Tx) current(ctx context.Context, alias string, id int64, expected *int64) (Record, error) {
	rec, err := getRecord(ctx, t.tx, alias, id)
	if err != nil {
		return Record{}, err
	}
	if expected != nil && *expected != rec.Version {
		return Record{}, fmt.Errorf("%w: %s %d is at version %d, expected %d",
			ErrOptimisticLock, alias, id, rec.Version, *expected)
	}
	return rec, nil
}

// write stores a new field set for current, guarded by its version.
func (t *Tx) write(ctx context.Context, current Record, fields value.Object) (Record, error) {
	data, err := marshalFields(fields)
	if err != nil {
		return Record{}, err
	}
	next := current.Version + 1
	res, err := t.tx.ExecContext(ctx, `
		UPDATE entities SET version = ?, fields = ?
		WHERE alias = ? AND id = ? AND version = ?
	`, next, data, current.Alias, current.ID, current.Version)
	if err != nil {
		return Record{}, fmt.Errorf("update %s %d: %w", current.Alias, current.ID, err)
	}
	if err := expectOneRow(res); err != nil {
		return Record{}, fmt.Errorf("update %s %d: %w", current.Alias, current.ID, err)
	}

	rec := Record{Alias: current.Alias, ID: current.ID, Version: next, Fields: fields}
	t.record(ChangeUpdate, rec)
	return cloneRecord(rec), nil
}

func (t *Tx) insert(ctx context.Context, rec Record) error {
	data, err := marshalFields(rec.Fields)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO entities (alias, id, version, fields) VALUES (?, ?, ?, ?)
	`, rec.Alias, rec.ID, rec.Version, data)
	return err
}

func (t *Tx) record(kind ChangeKind, rec Record) {
	ch := Change{Kind: kind, Alias: rec.Alias, ID: rec.ID, Version: rec.Version}
	if kind != ChangeDelete {
		ch.Fields = rec.Fields.Clone()
	}
	t.changes = append(t.changes, ch)
}

// checkFields rejects names the descriptor does not declare.
func checkFields(desc *entity.Descriptor, fields value.Object) error {
	for _, name := range fields.SortedKeys() {
		if _, ok := desc.Property(name); !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownField, desc.Alias(), name)
		}
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return errors.New("concurrent modification")
	}
	return nil
}

func cloneRecord(rec Record) Record {
	rec.Fields = rec.Fields.Clone()
	return rec
}

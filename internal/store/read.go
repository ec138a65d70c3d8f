package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Get returns the current state of an instance.
func (s *Store) Get(ctx context.Context, alias string, id int64) (Record, error) {
	if _, err := s.descriptor(alias); err != nil {
		return Record{}, err
	}
	return getRecord(ctx, s.db, alias, id)
}

// List returns all current instances of alias ordered by id.
// Returns an empty slice (not nil) if there are none.
func (s *Store) List(ctx context.Context, alias string) ([]Record, error) {
	if _, err := s.descriptor(alias); err != nil {
		return nil, err
	}
	return listRecords(ctx, s.db, alias)
}

func getRecord(ctx context.Context, q querier, alias string, id int64) (Record, error) {
	var (
		version int64
		fields  string
	)
	err := q.QueryRowContext(ctx, `
		SELECT version, fields FROM entities WHERE alias = ? AND id = ?
	`, alias, id).Scan(&version, &fields)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s %d", ErrNotFound, alias, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s %d: %w", alias, id, err)
	}

	obj, err := unmarshalFields(fields)
	if err != nil {
		return Record{}, fmt.Errorf("get %s %d: %w", alias, id, err)
	}
	return Record{Alias: alias, ID: id, Version: version, Fields: obj}, nil
}

func listRecords(ctx context.Context, q querier, alias string) ([]Record, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, version, fields FROM entities
		WHERE alias = ?
		ORDER BY id ASC
	`, alias)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", alias, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec    = Record{Alias: alias}
			fields string
		)
		if err := rows.Scan(&rec.ID, &rec.Version, &fields); err != nil {
			return nil, fmt.Errorf("scan %s: %w", alias, err)
		}
		if rec.Fields, err = unmarshalFields(fields); err != nil {
			return nil, fmt.Errorf("list %s %d: %w", alias, rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", alias, err)
	}
	return records, nil
}

// States returns every committed transaction in sequence order.
func (s *Store) States(ctx context.Context) ([]State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.seq, t.tx_id, t.committed_at, t.migration,
		       (SELECT COUNT(*) FROM changes c WHERE c.seq = t.seq)
		FROM transactions t
		ORDER BY t.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	states := []State{}
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return states, nil
}

// LastSeq returns the sequence number of the latest commit, 0 if none.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM transactions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (State, error) {
	var (
		st        State
		txID      string
		committed string
		migration sql.NullString
	)
	if err := row.Scan(&st.Seq, &txID, &committed, &migration, &st.Changes); err != nil {
		return State{}, fmt.Errorf("scan state: %w", err)
	}
	id, err := uuid.Parse(txID)
	if err != nil {
		return State{}, fmt.Errorf("state %d: parse tx id: %w", st.Seq, err)
	}
	st.TxID = id
	if st.CommittedAt, err = parseTime(committed); err != nil {
		return State{}, fmt.Errorf("state %d: %w", st.Seq, err)
	}
	st.Migration = migration.String
	return st, nil
}

// Commits replays the change log through fn, one commit at a time in
// sequence order, up to and including seq upTo (0 means all).
func (s *Store) Commits(ctx context.Context, upTo int64, fn func(Commit) error) error {
	states, err := s.States(ctx)
	if err != nil {
		return err
	}
	byState := make(map[int64]*Commit, len(states))
	commits := make([]*Commit, 0, len(states))
	for _, st := range states {
		if upTo > 0 && st.Seq > upTo {
			break
		}
		c := &Commit{State: st, Changes: []Change{}}
		byState[st.Seq] = c
		commits = append(commits, c)
	}

	query := `
		SELECT seq, kind, alias, id, version, fields
		FROM changes
		ORDER BY seq ASC, ordinal ASC
	`
	args := []any{}
	if upTo > 0 {
		query = `
			SELECT seq, kind, alias, id, version, fields
			FROM changes
			WHERE seq <= ?
			ORDER BY seq ASC, ordinal ASC
		`
		args = append(args, upTo)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq    int64
			ch     Change
			kind   string
			fields sql.NullString
		)
		if err := rows.Scan(&seq, &kind, &ch.Alias, &ch.ID, &ch.Version, &fields); err != nil {
			return fmt.Errorf("scan change: %w", err)
		}
		ch.Kind = ChangeKind(kind)
		if fields.Valid {
			if ch.Fields, err = unmarshalFields(fields.String); err != nil {
				return fmt.Errorf("change %d %s %d: %w", seq, ch.Alias, ch.ID, err)
			}
		}
		c, ok := byState[seq]
		if !ok {
			return fmt.Errorf("change references unknown state %d", seq)
		}
		c.Changes = append(c.Changes, ch)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate changes: %w", err)
	}

	for _, c := range commits {
		if err := fn(*c); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot materializes the store as it was right after state seq.
// State 0 is the empty store. Records are ordered by alias then id.
func (s *Store) Snapshot(ctx context.Context, seq int64) ([]Record, error) {
	if seq < 0 {
		return nil, fmt.Errorf("%w: %d", ErrStateNotFound, seq)
	}
	last, err := s.LastSeq(ctx)
	if err != nil {
		return nil, err
	}
	if seq > last {
		return nil, fmt.Errorf("%w: %d", ErrStateNotFound, seq)
	}
	if seq == 0 {
		return []Record{}, nil
	}

	type key struct {
		alias string
		id    int64
	}
	live := make(map[key]Record)
	err = s.Commits(ctx, seq, func(c Commit) error {
		for _, ch := range c.Changes {
			k := key{ch.Alias, ch.ID}
			if ch.Kind == ChangeDelete {
				delete(live, k)
				continue
			}
			live[k] = Record{Alias: ch.Alias, ID: ch.ID, Version: ch.Version, Fields: ch.Fields}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", seq, err)
	}

	out := make([]Record, 0, len(live))
	for _, rec := range live {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Alias != out[j].Alias {
			return out[i].Alias < out[j].Alias
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AppliedMigrations lists the data migrations that have run, in the
// order they were applied.
func (s *Store) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, seq, applied_at FROM migrations ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	out := []AppliedMigration{}
	for rows.Next() {
		var (
			m       AppliedMigration
			applied string
		)
		if err := rows.Scan(&m.Name, &m.Seq, &applied); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		if m.AppliedAt, err = parseTime(applied); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}
	return out, nil
}

package migration

import (
	"fmt"

	"github.com/roach88/storekit/internal/store"
	"github.com/roach88/storekit/internal/value"
)

// RenameField moves the value of field from to field to on every
// instance of alias. Instances without the old field are left alone.
func RenameField(alias, from, to string) Transform {
	return Migrate(alias,
		func(rec store.Record) bool {
			_, ok := rec.Fields[from]
			return ok
		},
		func(fields value.Object) (value.Object, error) {
			fields[to] = fields[from]
			delete(fields, from)
			return fields, nil
		},
	)
}

// ReplaceNullValues sets field to v on every instance where it is
// absent or null.
func ReplaceNullValues(alias, field string, v value.Value) Transform {
	return ReplaceNullValuesFunc(alias, field, func(store.Record) (value.Value, error) {
		return v, nil
	})
}

// ReplaceNullValuesFunc is like ReplaceNullValues but computes the value
// per instance.
func ReplaceNullValuesFunc(alias, field string, fn func(store.Record) (value.Value, error)) Transform {
	return func(tx *store.MigrationTx) error {
		recs, err := tx.List(alias)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if !value.IsNull(rec.Fields.Get(field)) {
				continue
			}
			v, err := fn(rec)
			if err != nil {
				return fmt.Errorf("%s %d: %w", alias, rec.ID, err)
			}
			fields := rec.Fields.Clone()
			fields[field] = v
			if _, err := tx.Put(alias, rec.ID, fields); err != nil {
				return err
			}
		}
		return nil
	}
}

// Migrate rewrites the field set of every instance of alias matching
// match with update. A nil match selects every instance.
func Migrate(alias string, match func(store.Record) bool, update func(value.Object) (value.Object, error)) Transform {
	return func(tx *store.MigrationTx) error {
		recs, err := tx.List(alias)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if match != nil && !match(rec) {
				continue
			}
			fields, err := update(rec.Fields.Clone())
			if err != nil {
				return fmt.Errorf("%s %d: %w", alias, rec.ID, err)
			}
			if _, err := tx.Put(alias, rec.ID, fields); err != nil {
				return err
			}
		}
		return nil
	}
}

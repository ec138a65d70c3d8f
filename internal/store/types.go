package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/roach88/storekit/internal/value"
)

// Record is one persisted entity instance.
type Record struct {
	Alias   string
	ID      int64
	Version int64
	Fields  value.Object
}

// ChangeKind is the kind of a logged change.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is one instance change inside a transaction. Fields holds the
// full field set after the change; it is nil for deletes.
type Change struct {
	Kind    ChangeKind
	Alias   string
	ID      int64
	Version int64
	Fields  value.Object
}

// State describes one committed transaction.
type State struct {
	Seq         int64
	TxID        uuid.UUID
	CommittedAt time.Time
	// Migration names the data migration that produced the transaction,
	// InitializerName for the initializer, empty for regular writes.
	Migration string
	Changes   int
}

// Commit is a committed transaction with its changes, in change order.
type Commit struct {
	State   State
	Changes []Change
}

// InstanceState is one entry of an instance's history.
type InstanceState struct {
	Seq         int64
	CommittedAt time.Time
	Kind        ChangeKind
	Version     int64
	Fields      value.Object
}

// AppliedMigration records a data migration that has run.
type AppliedMigration struct {
	Name      string
	Seq       int64
	AppliedAt time.Time
}

// InitializerName labels the state produced by the store initializer.
const InitializerName = "_init"

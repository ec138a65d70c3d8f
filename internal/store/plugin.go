package store

import "context"

// Plugin extends the store. A plugin implements Verifier, Observer or
// both; the store only calls the hooks a plugin implements.
type Plugin interface {
	Name() string
}

// Verifier checks the changes of a transaction before it commits.
// Returning an error aborts the transaction with a VerificationError.
// Verify runs while the transaction holds the database connection, so it
// must not read from the store.
type Verifier interface {
	Plugin
	Verify(ctx context.Context, change Change) error
}

// Observer follows committed transactions.
//
// Init is called once by Builder.Build after migrations ran, with the
// store fully readable. Committed is called after every later commit,
// in sequence order, while the store holds its commit lock: it must not
// start a write transaction.
type Observer interface {
	Plugin
	Init(ctx context.Context, s *Store) error
	Committed(commit Commit)
}

// Package crud exposes entity types as generic list/get/create/patch/
// delete endpoints over the store.
//
// Endpoint is the typed API. Resource is the untyped view the HTTP layer
// mounts; every Endpoint is a Resource. Binding ties an entity type to
// the endpoint built for it once a store exists.
package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/storekit/internal/apperr"
	"github.com/roach88/storekit/internal/entity"
	"github.com/roach88/storekit/internal/patch"
	"github.com/roach88/storekit/internal/store"
	"github.com/roach88/storekit/internal/value"
)

// Backend is the storage an endpoint works on. *store.Store implements it.
type Backend interface {
	patch.Updater
	Get(ctx context.Context, alias string, id int64) (store.Record, error)
	List(ctx context.Context, alias string) ([]store.Record, error)
	Create(ctx context.Context, alias string, fields value.Object) (store.Record, error)
	Delete(ctx context.Context, alias string, id int64, expected *int64) error
}

// Endpoint serves one entity type.
type Endpoint[T any, PT interface {
	*T
	entity.Entity
}] struct {
	typ     *entity.Type[T, PT]
	backend Backend
	patch   *patch.Protocol
	logger  *slog.Logger
}

// New returns an endpoint for typ. A nil logger uses slog.Default().
func New[T any, PT interface {
	*T
	entity.Entity
}](typ *entity.Type[T, PT], backend Backend, logger *slog.Logger) *Endpoint[T, PT] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoint[T, PT]{
		typ:     typ,
		backend: backend,
		patch:   patch.New(backend, logger),
		logger:  logger,
	}
}

// Descriptor returns the entity schema.
func (e *Endpoint[T, PT]) Descriptor() *entity.Descriptor {
	return e.typ.Descriptor()
}

func (e *Endpoint[T, PT]) alias() string {
	return e.typ.Descriptor().Alias()
}

// List returns every instance ordered by id.
func (e *Endpoint[T, PT]) List(ctx context.Context) ([]T, error) {
	recs, err := e.backend.List(ctx, e.alias())
	if err != nil {
		return nil, apperr.PersistenceFailed(err)
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		inst, err := e.typ.Decode(rec.ID, rec.Version, rec.Fields)
		if err != nil {
			return nil, apperr.PersistenceFailed(err)
		}
		out = append(out, inst)
	}
	return out, nil
}

// Get returns one instance.
func (e *Endpoint[T, PT]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	rec, err := e.backend.Get(ctx, e.alias(), id)
	if err != nil {
		return zero, patch.FromStore(e.alias(), id, err)
	}
	inst, err := e.typ.Decode(rec.ID, rec.Version, rec.Fields)
	if err != nil {
		return zero, apperr.PersistenceFailed(err)
	}
	return inst, nil
}

// Create persists inst as a new instance in one transaction and returns
// its identity. Identity and version set on inst are ignored.
//
// The store never reports a missing instance or a version conflict for a
// create; if it does, Create panics.
func (e *Endpoint[T, PT]) Create(ctx context.Context, inst T) (int64, error) {
	fields, err := e.typ.Encode(PT(&inst))
	if err != nil {
		return 0, apperr.BadRequest(fmt.Sprintf("cannot encode %s", e.alias()), err)
	}

	rec, err := e.backend.Create(ctx, e.alias(), fields)
	if err != nil {
		var verr *store.VerificationError
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrOptimisticLock):
			panic(fmt.Sprintf("crud: create %s: store contract violated: %v", e.alias(), err))
		case errors.As(err, &verr):
			return 0, apperr.VerificationFailed(verr.Detail())
		default:
			return 0, apperr.PersistenceFailed(err)
		}
	}

	e.logger.Debug("instance created", "alias", e.alias(), "id", rec.ID)
	return rec.ID, nil
}

// Patch applies a partial update. See package patch.
func (e *Endpoint[T, PT]) Patch(ctx context.Context, id int64, body []byte) (T, error) {
	var zero T
	rec, err := e.patch.Apply(ctx, e.alias(), id, body)
	if err != nil {
		return zero, err
	}
	inst, err := e.typ.Decode(rec.ID, rec.Version, rec.Fields)
	if err != nil {
		return zero, apperr.PersistenceFailed(err)
	}
	return inst, nil
}

// Delete removes an instance.
func (e *Endpoint[T, PT]) Delete(ctx context.Context, id int64) error {
	if err := e.backend.Delete(ctx, e.alias(), id, nil); err != nil {
		return patch.FromStore(e.alias(), id, err)
	}
	e.logger.Debug("instance deleted", "alias", e.alias(), "id", id)
	return nil
}

// ListAny implements Resource.
func (e *Endpoint[T, PT]) ListAny(ctx context.Context) ([]any, error) {
	list, err := e.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(list))
	for i := range list {
		out[i] = list[i]
	}
	return out, nil
}

// GetAny implements Resource.
func (e *Endpoint[T, PT]) GetAny(ctx context.Context, id int64) (any, error) {
	return e.Get(ctx, id)
}

// CreateJSON implements Resource.
func (e *Endpoint[T, PT]) CreateJSON(ctx context.Context, body []byte) (int64, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return 0, apperr.BadRequest(fmt.Sprintf("%s must be a JSON object", e.alias()), nil)
	}
	var inst T
	if err := json.Unmarshal(trimmed, &inst); err != nil {
		return 0, apperr.BadRequest(fmt.Sprintf("malformed %s", e.alias()), err)
	}
	return e.Create(ctx, inst)
}

// PatchJSON implements Resource.
func (e *Endpoint[T, PT]) PatchJSON(ctx context.Context, id int64, body []byte) (any, error) {
	return e.Patch(ctx, id, body)
}

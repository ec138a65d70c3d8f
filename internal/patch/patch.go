// Package patch applies partial updates to entity instances.
//
// A patch body is a JSON object mapping property names to new values.
// The reserved key _version carries the version the client last saw;
// when present the update only applies if the instance is still at that
// version. Other keys starting with _ are metadata and ignored. Every
// remaining key must be a declared property and its value must fit the
// property's kind, otherwise the patch is rejected before storage is
// touched. A valid patch results in exactly one conditional update.
package patch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/storekit/internal/apperr"
	"github.com/roach88/storekit/internal/entity"
	"github.com/roach88/storekit/internal/store"
	"github.com/roach88/storekit/internal/value"
)

// Updater is the storage the protocol needs. *store.Store implements it.
type Updater interface {
	Descriptor(alias string) (*entity.Descriptor, bool)
	Update(ctx context.Context, alias string, id int64, expected *int64, fields value.Object) (store.Record, error)
}

// Request is a validated patch.
type Request struct {
	Alias    string
	ID       int64
	Expected *int64
	Fields   value.Object
}

// Protocol validates and applies patches.
type Protocol struct {
	store  Updater
	logger *slog.Logger
}

// New returns a protocol over s. A nil logger uses slog.Default().
func New(s Updater, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{store: s, logger: logger}
}

// Apply validates body and applies it to instance id of alias.
// Returns the updated record.
func (p *Protocol) Apply(ctx context.Context, alias string, id int64, body []byte) (store.Record, error) {
	req, err := p.Parse(alias, id, body)
	if err != nil {
		return store.Record{}, err
	}

	rec, err := p.store.Update(ctx, req.Alias, req.ID, req.Expected, req.Fields)
	if err != nil {
		mapped := FromStore(alias, id, err)
		p.logger.Debug("patch rejected by store",
			"alias", alias,
			"id", id,
			"kind", apperr.KindOf(mapped),
			"error", err,
		)
		return store.Record{}, mapped
	}

	p.logger.Debug("patch applied",
		"alias", alias,
		"id", id,
		"version", rec.Version,
		"fields", len(req.Fields),
	)
	return rec, nil
}

// Parse validates body against the descriptor of alias without touching
// storage.
func (p *Protocol) Parse(alias string, id int64, body []byte) (Request, error) {
	desc, ok := p.store.Descriptor(alias)
	if !ok {
		return Request{}, apperr.BadRequest(fmt.Sprintf("unknown entity type %q", alias), nil)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Request{}, apperr.BadRequest("request body must be a JSON object", nil)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Request{}, apperr.BadRequest("request body must be a JSON object", err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	req := Request{Alias: alias, ID: id, Fields: value.Object{}}
	for _, key := range keys {
		if key == entity.VersionKey {
			expected, err := parseVersion(raw[key])
			if err != nil {
				return Request{}, err
			}
			req.Expected = expected
			continue
		}
		if strings.HasPrefix(key, entity.ReservedPrefix) {
			continue
		}

		prop, ok := desc.Property(key)
		if !ok {
			return Request{}, apperr.InvalidField(key)
		}
		v, err := value.Decode(prop.Kind, raw[key])
		if err != nil {
			return Request{}, apperr.TypeCoercionFailed(key, err)
		}
		req.Fields[key] = v
	}
	return req, nil
}

// parseVersion reads the _version token. Null means no version check.
func parseVersion(raw json.RawMessage) (*int64, error) {
	v, err := value.Decode(value.KindInt, raw)
	if err != nil {
		return nil, apperr.TypeCoercionFailed(entity.VersionKey, err)
	}
	n, ok := v.(value.Int)
	if !ok {
		return nil, nil
	}
	version := int64(n)
	return &version, nil
}

// FromStore translates a store error into the boundary taxonomy.
func FromStore(alias string, id int64, err error) error {
	if err == nil {
		return nil
	}
	var verr *store.VerificationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(alias, id)
	case errors.Is(err, store.ErrOptimisticLock):
		return apperr.OptimisticConflict(err)
	case errors.As(err, &verr):
		return apperr.VerificationFailed(verr.Detail())
	default:
		return apperr.PersistenceFailed(err)
	}
}

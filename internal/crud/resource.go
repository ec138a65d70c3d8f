package crud

import (
	"context"
	"log/slog"

	"github.com/roach88/storekit/internal/entity"
)

// Resource is the untyped view of an Endpoint.
type Resource interface {
	Descriptor() *entity.Descriptor
	ListAny(ctx context.Context) ([]any, error)
	GetAny(ctx context.Context, id int64) (any, error)
	CreateJSON(ctx context.Context, body []byte) (int64, error)
	PatchJSON(ctx context.Context, id int64, body []byte) (any, error)
	Delete(ctx context.Context, id int64) error
}

// Binding is an entity type that can be served once a store exists.
type Binding interface {
	entity.Registration
	Bind(backend Backend, logger *slog.Logger) Resource
}

// Of wraps an entity type into a Binding.
func Of[T any, PT interface {
	*T
	entity.Entity
}](typ *entity.Type[T, PT]) Binding {
	return binding[T, PT]{typ}
}

type binding[T any, PT interface {
	*T
	entity.Entity
}] struct {
	*entity.Type[T, PT]
}

func (b binding[T, PT]) Bind(backend Backend, logger *slog.Logger) Resource {
	return New(b.Type, backend, logger)
}

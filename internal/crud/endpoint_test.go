package crud

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/apperr"
	"github.com/roach88/storekit/internal/entity"
	"github.com/roach88/storekit/internal/plugin/validate"
	"github.com/roach88/storekit/internal/store"
	"github.com/roach88/storekit/internal/value"
)

type gear struct {
	entity.Base
	Name  string `json:"name"`
	Teeth int64  `json:"teeth"`
}

func gearType() *entity.Type[gear, *gear] {
	return entity.MustDefine[gear]("gear", "gears",
		entity.Prop("name", value.KindString),
		entity.Prop("teeth", value.KindInt),
	).WithVerifier(func(g *gear) error {
		if g.Teeth < 0 {
			return errors.New("teeth must not be negative")
		}
		return nil
	})
}

func newEndpoint(t *testing.T) (*Endpoint[gear, *gear], *store.Store) {
	t.Helper()
	typ := gearType()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	v := validate.New()
	v.Register("gear", typ.Verify)

	b := store.NewBuilder(s)
	require.NoError(t, b.RegisterEntity(typ.Descriptor()))
	require.NoError(t, b.AddPlugin(v))
	s, err = b.Build(context.Background())
	require.NoError(t, err)

	return New(typ, s, nil), s
}

func TestCreateGetRoundTrip(t *testing.T) {
	e, _ := newEndpoint(t)
	ctx := context.Background()

	id, err := e.Create(ctx, gear{Base: entity.Base{ID: 500, Version: 9}, Name: "spur", Teeth: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id, "identity is assigned by the store")

	got, err := e.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, gear{Base: entity.Base{ID: id, Version: 1}, Name: "spur", Teeth: 12}, got)
}

func TestListOrderedByID(t *testing.T) {
	e, _ := newEndpoint(t)
	ctx := context.Background()

	empty, err := e.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, name := range []string{"b", "a", "c"} {
		_, err := e.Create(ctx, gear{Name: name})
		require.NoError(t, err)
	}

	list, err := e.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{list[0].Name, list[1].Name, list[2].Name})
	assert.Equal(t, []int64{1, 2, 3}, []int64{list[0].ID, list[1].ID, list[2].ID})
}

func TestNotFound(t *testing.T) {
	e, _ := newEndpoint(t)
	ctx := context.Background()

	_, err := e.Get(ctx, 42)
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, "gear 42 not found", err.Error())

	assert.True(t, apperr.IsNotFound(e.Delete(ctx, 42)))

	_, err = e.Patch(ctx, 42, []byte(`{"name":"x"}`))
	assert.True(t, apperr.IsNotFound(err))
}

func TestCreateVerificationFailure(t *testing.T) {
	e, _ := newEndpoint(t)

	_, err := e.Create(context.Background(), gear{Name: "bad", Teeth: -1})
	assert.Equal(t, apperr.KindVerificationFailed, apperr.KindOf(err))

	list, err := e.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPatchAndDelete(t *testing.T) {
	e, _ := newEndpoint(t)
	ctx := context.Background()

	id, err := e.Create(ctx, gear{Name: "spur", Teeth: 12})
	require.NoError(t, err)

	got, err := e.Patch(ctx, id, []byte(`{"teeth":14,"_version":1}`))
	require.NoError(t, err)
	assert.Equal(t, int64(14), got.Teeth)
	assert.Equal(t, "spur", got.Name)
	assert.Equal(t, int64(2), got.Version)

	_, err = e.Patch(ctx, id, []byte(`{"teeth":-3}`))
	assert.Equal(t, apperr.KindVerificationFailed, apperr.KindOf(err))

	require.NoError(t, e.Delete(ctx, id))
	_, err = e.Get(ctx, id)
	assert.True(t, apperr.IsNotFound(err))
}

func TestResourceView(t *testing.T) {
	e, _ := newEndpoint(t)
	ctx := context.Background()
	var r Resource = e

	id, err := r.CreateJSON(ctx, []byte(`{"name":"spur","teeth":8,"id":77}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = r.CreateJSON(ctx, []byte(`{"name":`))
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	_, err = r.CreateJSON(ctx, []byte(`{"teeth":"many"}`))
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	for _, body := range []string{`null`, ``, `[]`, `"spur"`, `7`} {
		_, err = r.CreateJSON(ctx, []byte(body))
		assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err), "body %q", body)
	}

	list, err := r.ListAny(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.IsType(t, gear{}, list[0])

	one, err := r.GetAny(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "spur", one.(gear).Name)

	patched, err := r.PatchJSON(ctx, id, []byte(`{"name":"helical"}`))
	require.NoError(t, err)
	assert.Equal(t, "helical", patched.(gear).Name)

	assert.Equal(t, "gears", r.Descriptor().Collection())
}

func TestBinding(t *testing.T) {
	typ := gearType()
	b := Of(typ)
	assert.Equal(t, "gear", b.Descriptor().Alias())
	assert.True(t, b.Verified())

	_, s := newEndpoint(t)
	r := b.Bind(s, nil)
	_, ok := r.(*Endpoint[gear, *gear])
	assert.True(t, ok)
}

// failingBackend returns createErr from Create.
type failingBackend struct {
	Backend
	createErr error
}

func (f failingBackend) Create(context.Context, string, value.Object) (store.Record, error) {
	return store.Record{}, f.createErr
}

func TestCreateContractBreachPanics(t *testing.T) {
	for _, err := range []error{
		fmt.Errorf("%w: gear 1", store.ErrNotFound),
		fmt.Errorf("%w: gear 1", store.ErrOptimisticLock),
	} {
		e := New(gearType(), failingBackend{createErr: err}, nil)
		assert.Panics(t, func() {
			_, _ = e.Create(context.Background(), gear{Name: "x"})
		})
	}
}

func TestCreatePersistenceFailure(t *testing.T) {
	e := New(gearType(), failingBackend{createErr: errors.New("disk full")}, nil)

	_, err := e.Create(context.Background(), gear{Name: "x"})
	assert.Equal(t, apperr.KindPersistenceFailed, apperr.KindOf(err))
}

package patch

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
	"github.com/roach88/storekit/internal/store"
	"github.com/roach88/storekit/internal/value"
)

type updateCall struct {
	alias    string
	id       int64
	expected *int64
	fields   value.Object
}

// recordingStore records Update calls and returns err from each.
type recordingStore struct {
	desc  *entity.Descriptor
	calls []updateCall
	err   error
}

func (r *recordingStore) Descriptor(alias string) (*entity.Descriptor, bool) {
	if alias != r.desc.Alias() {
		return nil, false
	}
	return r.desc, true
}

func (r *recordingStore) Update(_ context.Context, alias string, id int64, expected *int64, fields value.Object) (store.Record, error) {
	r.calls = append(r.calls, updateCall{alias, id, expected, fields})
	if r.err != nil {
		return store.Record{}, r.err
	}
	return store.Record{Alias: alias, ID: id, Version: 4, Fields: fields}, nil
}

func newRecordingStore(t *testing.T) *recordingStore {
	t.Helper()
	desc, err := entity.NewDescriptor("widget", "widgets",
		entity.Prop("name", value.KindString),
		entity.Prop("count", value.KindInt),
		entity.Prop("active", value.KindBool),
		entity.Prop("tags", value.KindStrings),
	)
	require.NoError(t, err)
	return &recordingStore{desc: desc}
}

func TestApplySubmitsOneConditionalUpdate(t *testing.T) {
	rs := newRecordingStore(t)
	p := New(rs, nil)

	rec, err := p.Apply(context.Background(), "widget", 7, []byte(`{"name":"foo","_version":3,"_links":{"self":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.Version)

	require.Len(t, rs.calls, 1)
	call := rs.calls[0]
	assert.Equal(t, "widget", call.alias)
	assert.Equal(t, int64(7), call.id)
	require.NotNil(t, call.expected)
	assert.Equal(t, int64(3), *call.expected)
	assert.Equal(t, value.Object{"name": value.String("foo")}, call.fields)
}

func TestApplyWithoutVersionIsUnconditional(t *testing.T) {
	rs := newRecordingStore(t)
	p := New(rs, nil)

	_, err := p.Apply(context.Background(), "widget", 1, []byte(`{"count":2,"_version":null}`))
	require.NoError(t, err)
	require.Len(t, rs.calls, 1)
	assert.Nil(t, rs.calls[0].expected)
}

func TestApplyCoercesAllKinds(t *testing.T) {
	rs := newRecordingStore(t)
	p := New(rs, nil)

	_, err := p.Apply(context.Background(), "widget", 1,
		[]byte(`{"name":"a","count":5,"active":true,"tags":["x","y"]}`))
	require.NoError(t, err)
	assert.Equal(t, value.Object{
		"name":   value.String("a"),
		"count":  value.Int(5),
		"active": value.Bool(true),
		"tags":   value.List{value.String("x"), value.String("y")},
	}, rs.calls[0].fields)
}

func TestApplyNullClearsField(t *testing.T) {
	rs := newRecordingStore(t)
	p := New(rs, nil)

	_, err := p.Apply(context.Background(), "widget", 1, []byte(`{"name":null}`))
	require.NoError(t, err)
	assert.Equal(t, value.Object{"name": value.Null{}}, rs.calls[0].fields)
}

func TestApplyEmptyObjectStillUpdates(t *testing.T) {
	rs := newRecordingStore(t)
	p := New(rs, nil)

	_, err := p.Apply(context.Background(), "widget", 1, []byte(`{}`))
	require.NoError(t, err)
	assert.Len(t, rs.calls, 1)
}

func TestApplyValidationFailuresNeverReachStore(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		kind  apperr.Kind
		field string
	}{
		{"unknown field", `{"bogus":1}`, apperr.KindInvalidField, "bogus"},
		{"unknown field beside valid", `{"name":"a","zzz":true}`, apperr.KindInvalidField, "zzz"},
		{"id is not a property", `{"id":9}`, apperr.KindInvalidField, "id"},
		{"string for int", `{"count":"5"}`, apperr.KindTypeCoercion, "count"},
		{"fraction for int", `{"count":1.5}`, apperr.KindTypeCoercion, "count"},
		{"number for bool", `{"active":1}`, apperr.KindTypeCoercion, "active"},
		{"null inside tags", `{"tags":["a",null]}`, apperr.KindTypeCoercion, "tags"},
		{"string version", `{"_version":"3"}`, apperr.KindTypeCoercion, "_version"},
		{"array body", `[1,2]`, apperr.KindBadRequest, ""},
		{"string body", `"x"`, apperr.KindBadRequest, ""},
		{"null body", `null`, apperr.KindBadRequest, ""},
		{"empty body", ``, apperr.KindBadRequest, ""},
		{"malformed", `{"name":`, apperr.KindBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := newRecordingStore(t)
			p := New(rs, nil)

			_, err := p.Apply(context.Background(), "widget", 1, []byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.True(t, apperr.IsValidation(err))
			if tt.field != "" {
				var e *apperr.Error
				require.ErrorAs(t, err, &e)
				assert.Equal(t, tt.field, e.Field)
			}
			assert.Empty(t, rs.calls, "store must not be called")
		})
	}
}

func TestApplyUnknownEntityType(t *testing.T) {
	rs := newRecordingStore(t)
	_, err := New(rs, nil).Apply(context.Background(), "gizmo", 1, []byte(`{}`))
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	assert.Empty(t, rs.calls)
}

func TestApplyMapsStoreOutcomes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind apperr.Kind
	}{
		{"not found", fmt.Errorf("%w: widget 1", store.ErrNotFound), apperr.KindNotFound},
		{"conflict", fmt.Errorf("%w: at 4", store.ErrOptimisticLock), apperr.KindOptimisticConflict},
		{"verification", &store.VerificationError{Plugin: "validation", Alias: "widget", ID: 1, Err: errors.New("no")}, apperr.KindVerificationFailed},
		{"other", errors.New("disk I/O error"), apperr.KindPersistenceFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := newRecordingStore(t)
			rs.err = tt.err

			_, err := New(rs, nil).Apply(context.Background(), "widget", 1, []byte(`{"name":"a"}`))
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Len(t, rs.calls, 1, "no retries")
		})
	}
}

func TestFromStoreVerificationDetail(t *testing.T) {
	err := FromStore("widget", 1, &store.VerificationError{Err: errors.New("name is required")})
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "name is required", e.Detail)
	assert.Nil(t, FromStore("widget", 1, nil))
}

func TestApplyAgainstStore(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	desc, err := entity.NewDescriptor("widget", "widgets", entity.Prop("name", value.KindString))
	require.NoError(t, err)
	b := store.NewBuilder(s)
	require.NoError(t, b.RegisterEntity(desc))
	s, err = b.Build(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	rec, err := s.Create(ctx, "widget", value.Object{"name": value.String("a")})
	require.NoError(t, err)

	p := New(s, nil)
	body := []byte(fmt.Sprintf(`{"name":"b","_version":%d}`, rec.Version))

	updated, err := p.Apply(ctx, "widget", rec.ID, body)
	require.NoError(t, err)
	assert.Equal(t, rec.Version+1, updated.Version)

	// Same token again: the version moved on.
	_, err = p.Apply(ctx, "widget", rec.ID, body)
	assert.True(t, apperr.IsOptimisticConflict(err))

	_, err = p.Apply(ctx, "widget", 999, []byte(`{"name":"x"}`))
	assert.True(t, apperr.IsNotFound(err))

	got, err := s.Get(ctx, "widget", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, value.String("b"), got.Fields["name"])
}

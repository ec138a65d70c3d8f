package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storekit/internal/value"
)

// seedWidgets commits: 1 create a, 2 create b, 3 update a, 4 delete b.
func seedWidgets(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	a, err := s.Create(ctx, "widget", value.Object{"name": value.String("a")})
	require.NoError(t, err)
	b, err := s.Create(ctx, "widget", value.Object{"name": value.String("b")})
	require.NoError(t, err)
	_, err = s.Update(ctx, "widget", a.ID, nil, value.Object{"count": value.Int(5)})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "widget", b.ID, nil))
}

func TestList_OrderedByID(t *testing.T) {
	s := createWidgetStore(t)
	ctx := context.Background()

	for _, name := range []string{"c", "a", "b"} {
		_, err := s.Create(ctx, "widget", value.Object{"name": value.String(name)})
		require.NoError(t, err)
	}

	list, err := s.List(ctx, "widget")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, rec := range list {
		assert.Equal(t, int64(i+1), rec.ID)
	}
}

func TestList_EmptyIsNotNil(t *testing.T) {
	s := createWidgetStore(t)

	list, err := s.List(context.Background(), "widget")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestGet_NotFound(t *testing.T) {
	s := createWidgetStore(t)

	_, err := s.Get(context.Background(), "widget", 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStates(t *testing.T) {
	s := createWidgetStore(t)
	seedWidgets(t, s)

	states, err := s.States(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 4)

	for i, st := range states {
		assert.Equal(t, int64(i+1), st.Seq)
		assert.Equal(t, 1, st.Changes)
		assert.Empty(t, st.Migration)
		assert.False(t, st.CommittedAt.Before(testEpoch))
		assert.Equal(t, time.UTC, st.CommittedAt.Location())
	}
	assert.True(t, states[0].CommittedAt.Before(states[3].CommittedAt))
	assert.NotEqual(t, states[0].TxID, states[1].TxID)

	last, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), last)
}

func TestSnapshot(t *testing.T) {
	s := createWidgetStore(t)
	seedWidgets(t, s)
	ctx := context.Background()

	tests := []struct {
		seq   int64
		names []string
	}{
		{0, []string{}},
		{1, []string{"a"}},
		{2, []string{"a", "b"}},
		{4, []string{"a"}},
	}
	for _, tt := range tests {
		recs, err := s.Snapshot(ctx, tt.seq)
		require.NoError(t, err)
		names := []string{}
		for _, r := range recs {
			names = append(names, string(r.Fields["name"].(value.String)))
		}
		assert.Equal(t, tt.names, names, "state %d", tt.seq)
	}

	recs, err := s.Snapshot(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[0].Version)
	assert.Equal(t, value.Int(5), recs[0].Fields["count"])

	_, err = s.Snapshot(ctx, 5)
	assert.ErrorIs(t, err, ErrStateNotFound)
	_, err = s.Snapshot(ctx, -1)
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestSnapshot_MatchesCurrentState(t *testing.T) {
	s := createWidgetStore(t)
	seedWidgets(t, s)
	ctx := context.Background()

	current, err := s.List(ctx, "widget")
	require.NoError(t, err)
	snap, err := s.Snapshot(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, current, snap)
}

func TestCommits_UpTo(t *testing.T) {
	s := createWidgetStore(t)
	seedWidgets(t, s)

	var seqs []int64
	err := s.Commits(context.Background(), 2, func(c Commit) error {
		seqs = append(seqs, c.State.Seq)
		require.Len(t, c.Changes, 1)
		assert.Equal(t, ChangeCreate, c.Changes[0].Kind)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, seqs)
}

func TestCommits_DeleteCarriesNoFields(t *testing.T) {
	s := createWidgetStore(t)
	seedWidgets(t, s)

	var changes []Change
	err := s.Commits(context.Background(), 0, func(c Commit) error {
		for _, ch := range c.Changes {
			if ch.ID == 2 {
				changes = append(changes, ch)
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, ChangeCreate, changes[0].Kind)
	assert.Equal(t, int64(1), changes[0].Version)
	assert.Equal(t, ChangeDelete, changes[1].Kind)
	assert.Equal(t, int64(2), changes[1].Version)
	assert.Nil(t, changes[1].Fields)
}

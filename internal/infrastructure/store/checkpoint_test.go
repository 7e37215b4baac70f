package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointStore_Get_ZeroWhenUnset(t *testing.T) {
	cs := NewCheckpointStore()

	cp, err := cs.Get(context.Background(), "read-models")

	require.NoError(t, err)
	assert.Equal(t, "read-models", cp.Projection)
	assert.Equal(t, int64(0), cp.Position)
	assert.Empty(t, cp.LastEventID)
}

func TestCheckpointStore_SaveAndGet(t *testing.T) {
	cs := NewCheckpointStore()
	ctx := context.Background()

	require.NoError(t, cs.Save(ctx, Checkpoint{
		Projection:  "read-models",
		Position:    42,
		LastEventID: "event-42",
	}))

	cp, err := cs.Get(ctx, "read-models")
	require.NoError(t, err)
	assert.Equal(t, int64(42), cp.Position)
	assert.Equal(t, "event-42", cp.LastEventID)
	assert.False(t, cp.UpdatedAt.IsZero())
}

func TestCheckpointStore_ProjectionsAreIndependent(t *testing.T) {
	cs := NewCheckpointStore()
	ctx := context.Background()

	require.NoError(t, cs.Save(ctx, Checkpoint{Projection: "read-models", Position: 10}))
	require.NoError(t, cs.Save(ctx, Checkpoint{Projection: "reporting", Position: 3}))

	a, _ := cs.Get(ctx, "read-models")
	b, _ := cs.Get(ctx, "reporting")
	assert.Equal(t, int64(10), a.Position)
	assert.Equal(t, int64(3), b.Position)
}

func TestDeadLetterStore_AddAndList(t *testing.T) {
	ds := NewDeadLetterStore()
	ctx := context.Background()

	require.NoError(t, ds.Add(ctx, DeadLetter{
		Projection: "read-models",
		EventID:    "event-1",
		Reason:     "decode failure",
		Attempts:   3,
	}))
	require.NoError(t, ds.Add(ctx, DeadLetter{
		Projection: "read-models",
		EventID:    "event-2",
		Reason:     "write failure",
		Attempts:   3,
	}))

	letters, err := ds.List(ctx, "read-models")
	require.NoError(t, err)
	require.Len(t, letters, 2)
	assert.Equal(t, "event-1", letters[0].EventID)
	assert.Equal(t, "event-2", letters[1].EventID)
	assert.False(t, letters[0].FailedAt.IsZero())

	other, err := ds.List(ctx, "reporting")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestReadStore_SeenEvent_FirstThenDuplicate(t *testing.T) {
	rs := NewReadStore()
	ctx := context.Background()

	seen, err := rs.SeenEvent(ctx, "read-models", "event-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = rs.SeenEvent(ctx, "read-models", "event-1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Same id under another projection is unseen.
	seen, err = rs.SeenEvent(ctx, "reporting", "event-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestReadStore_SetGetDelete(t *testing.T) {
	rs := NewReadStore()
	ctx := context.Background()

	require.NoError(t, rs.Set(ctx, "orders", "order-1", map[string]int{"total": 100}))

	data, ok, err := rs.Get(ctx, "orders", "order-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"total": 100}, data)

	require.NoError(t, rs.Delete(ctx, "orders", "order-1"))
	_, ok, err = rs.Get(ctx, "orders", "order-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadStore_Update_MissingRow(t *testing.T) {
	rs := NewReadStore()

	updated, err := rs.Update(context.Background(), "orders", "missing", func(current any) any {
		return current
	})

	require.NoError(t, err)
	assert.False(t, updated)
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(eventType string, payload string) NewEvent {
	return NewEvent{
		ID:            uuid.New().String(),
		EventType:     eventType,
		SchemaVersion: 1,
		Data:          json.RawMessage(payload),
		OccurredAt:    time.Now(),
	}
}

// ============================================
// Append Tests
// ============================================

func TestEventStore_Append_AssignsConsecutiveSequences(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	committed, err := es.Append(ctx, "order-1", "Order", 0, []NewEvent{
		testEvent("OrderCreated", `{"total":100}`),
		testEvent("ItemAdded", `{"qty":1}`),
	})

	require.NoError(t, err)
	require.Len(t, committed, 2)
	assert.Equal(t, 1, committed[0].SequenceNumber)
	assert.Equal(t, 2, committed[1].SequenceNumber)
	assert.Equal(t, "order-1", committed[0].AggregateID)
	assert.Equal(t, "Order", committed[0].AggregateType)

	more, err := es.Append(ctx, "order-1", "Order", 2, []NewEvent{
		testEvent("OrderPaid", `{"amount":100}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, more[0].SequenceNumber)
}

func TestEventStore_Append_EmptyBatch(t *testing.T) {
	es := NewEventStore(nil)

	_, err := es.Append(context.Background(), "order-1", "Order", 0, nil)

	assert.ErrorIs(t, err, ErrEmptyAppend)
}

func TestEventStore_Append_VersionConflict(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	_, err := es.Append(ctx, "order-1", "Order", 0, []NewEvent{testEvent("OrderCreated", `{}`)})
	require.NoError(t, err)

	// Stale expected version: the aggregate is at 1, not 0.
	_, err = es.Append(ctx, "order-1", "Order", 0, []NewEvent{testEvent("ItemAdded", `{}`)})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	// The losing write must not have left anything behind.
	version, err := es.CurrentVersion(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestEventStore_Append_ConcurrentWritersOneWins(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	_, err := es.Append(ctx, "order-1", "Order", 0, []NewEvent{testEvent("OrderCreated", `{}`)})
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := es.Append(ctx, "order-1", "Order", 1, []NewEvent{testEvent("ItemAdded", `{}`)})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrConcurrencyConflict)
		}
	}
	assert.Equal(t, 1, succeeded)

	version, err := es.CurrentVersion(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestEventStore_Append_DuplicateBatchIsNoOp(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	batch := []NewEvent{testEvent("OrderCreated", `{"total":100}`)}
	first, err := es.Append(ctx, "order-1", "Order", 0, batch)
	require.NoError(t, err)

	// Retrying the exact batch succeeds and returns the original commit.
	second, err := es.Append(ctx, "order-1", "Order", 0, batch)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	version, err := es.CurrentVersion(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestEventStore_Append_PartialDuplicateFails(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	committed := testEvent("OrderCreated", `{}`)
	_, err := es.Append(ctx, "order-1", "Order", 0, []NewEvent{committed})
	require.NoError(t, err)

	_, err = es.Append(ctx, "order-1", "Order", 1, []NewEvent{committed, testEvent("ItemAdded", `{}`)})
	assert.ErrorIs(t, err, ErrDuplicateEvent)
}

func TestEventStore_Append_IndependentAggregates(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	_, err := es.Append(ctx, "order-1", "Order", 0, []NewEvent{testEvent("OrderCreated", `{}`)})
	require.NoError(t, err)
	_, err = es.Append(ctx, "order-2", "Order", 0, []NewEvent{testEvent("OrderCreated", `{}`)})
	require.NoError(t, err)

	v1, _ := es.CurrentVersion(ctx, "order-1")
	v2, _ := es.CurrentVersion(ctx, "order-2")
	assert.Equal(t, 1, v1)
	assert.Equal(t, 1, v2)
}

// ============================================
// Read Tests
// ============================================

func TestEventStore_ReadEvents_FromVersion(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	_, err := es.Append(ctx, "order-1", "Order", 0, []NewEvent{
		testEvent("OrderCreated", `{}`),
		testEvent("ItemAdded", `{}`),
		testEvent("OrderPaid", `{}`),
	})
	require.NoError(t, err)

	all, err := es.ReadEvents(ctx, "order-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, e := range all {
		assert.Equal(t, i+1, e.SequenceNumber)
	}

	tail, err := es.ReadEvents(ctx, "order-1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, 3, tail[0].SequenceNumber)

	empty, err := es.ReadEvents(ctx, "order-1", 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEventStore_ReadEvents_UnknownAggregate(t *testing.T) {
	es := NewEventStore(nil)

	events, err := es.ReadEvents(context.Background(), "missing", 0)

	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventStore_ReadRange(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	_, err := es.Append(ctx, "order-1", "Order", 0, []NewEvent{
		testEvent("OrderCreated", `{}`),
		testEvent("ItemAdded", `{}`),
		testEvent("ItemAdded", `{}`),
		testEvent("OrderPaid", `{}`),
	})
	require.NoError(t, err)

	window, err := es.ReadRange(ctx, "order-1", 2, 3)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, 2, window[0].SequenceNumber)
	assert.Equal(t, 3, window[1].SequenceNumber)

	// to <= 0 is an open upper bound
	openEnd, err := es.ReadRange(ctx, "order-1", 3, 0)
	require.NoError(t, err)
	require.Len(t, openEnd, 2)
	assert.Equal(t, 4, openEnd[1].SequenceNumber)
}

func TestEventStore_ReadAllEvents_CommitOrderAndPaging(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		aggregateID := fmt.Sprintf("order-%d", i)
		_, err := es.Append(ctx, aggregateID, "Order", 0, []NewEvent{testEvent("OrderCreated", `{}`)})
		require.NoError(t, err)
	}

	page1, err := es.ReadAllEvents(ctx, 0, 3)
	require.NoError(t, err)
	require.Len(t, page1, 3)
	assert.Equal(t, int64(1), page1[0].GlobalPosition)
	assert.Equal(t, int64(3), page1[2].GlobalPosition)

	page2, err := es.ReadAllEvents(ctx, page1[2].GlobalPosition, 3)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, int64(4), page2[0].GlobalPosition)
	assert.Equal(t, int64(5), page2[1].GlobalPosition)

	done, err := es.ReadAllEvents(ctx, page2[1].GlobalPosition, 3)
	require.NoError(t, err)
	assert.Empty(t, done)
}

// ============================================
// Redaction Tests
// ============================================

func TestEventStore_RedactEvent_BlanksPayloadOnly(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	committed, err := es.Append(ctx, "order-1", "Order", 0, []NewEvent{
		testEvent("OrderCreated", `{"customer":"alice"}`),
		testEvent("OrderPaid", `{"amount":100}`),
	})
	require.NoError(t, err)

	require.NoError(t, es.RedactEvent(ctx, "order-1", 1))

	events, err := es.ReadEvents(ctx, "order-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Envelope survives, payload is gone.
	redacted := events[0]
	assert.Empty(t, redacted.Data)
	assert.Equal(t, committed[0].ID, redacted.ID)
	assert.Equal(t, committed[0].EventType, redacted.EventType)
	assert.Equal(t, 1, redacted.SequenceNumber)
	assert.Equal(t, committed[0].OccurredAt, redacted.OccurredAt)

	// Neighbouring event untouched.
	assert.JSONEq(t, `{"amount":100}`, string(events[1].Data))

	// Global log view agrees.
	all, err := es.ReadAllEvents(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, all[0].Data)
}

func TestEventStore_RedactEvent_UnknownSequence(t *testing.T) {
	es := NewEventStore(nil)
	ctx := context.Background()

	_, err := es.Append(ctx, "order-1", "Order", 0, []NewEvent{testEvent("OrderCreated", `{}`)})
	require.NoError(t, err)

	assert.ErrorIs(t, es.RedactEvent(ctx, "order-1", 2), ErrEventNotFound)
	assert.ErrorIs(t, es.RedactEvent(ctx, "order-1", 0), ErrEventNotFound)
	assert.ErrorIs(t, es.RedactEvent(ctx, "missing", 1), ErrEventNotFound)
}

package resilience

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsguard/obsguard/pkg/errors"
)

// recordingSink collects writes and can be toggled unhealthy
type recordingSink struct {
	writes  [][]Event
	healthy bool
	failing bool
}

func (s *recordingSink) Write(ctx context.Context, events []Event) error {
	if s.failing {
		return errors.NewExternalError("sink", "write refused")
	}
	batch := make([]Event, len(events))
	copy(batch, events)
	s.writes = append(s.writes, batch)
	return nil
}

func (s *recordingSink) Healthy(ctx context.Context) bool {
	return s.healthy
}

func bufferEvents(b *EventBuffer, n int) {
	for i := 0; i < n; i++ {
		b.Append(NewEvent("logging", "log_entry", map[string]string{"seq": fmt.Sprint(i)}))
	}
}

func TestEventBuffer_AppendAndLen(t *testing.T) {
	buffer := NewEventBuffer("test", 10, nil)

	bufferEvents(buffer, 3)
	assert.Equal(t, 3, buffer.Len())
	assert.Equal(t, uint64(0), buffer.Dropped())
}

func TestEventBuffer_DropsOldestOnOverflow(t *testing.T) {
	buffer := NewEventBuffer("test", 5, nil)

	for i := 0; i < 8; i++ {
		buffer.Append(Event{ID: fmt.Sprintf("event-%d", i), Component: "logging"})
	}

	assert.Equal(t, 5, buffer.Len())
	assert.Equal(t, uint64(3), buffer.Dropped())

	// The survivors are the newest five
	sink := &recordingSink{healthy: true}
	flushed, err := buffer.Flush(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, 5, flushed)
	require.Len(t, sink.writes, 1)
	assert.Equal(t, "event-3", sink.writes[0][0].ID)
	assert.Equal(t, "event-7", sink.writes[0][4].ID)
}

func TestEventBuffer_FlushEmpty(t *testing.T) {
	buffer := NewEventBuffer("test", 10, nil)
	sink := &recordingSink{healthy: true}

	flushed, err := buffer.Flush(context.Background(), sink)
	require.NoError(t, err)
	assert.Zero(t, flushed)
	assert.Empty(t, sink.writes)
}

func TestEventBuffer_FlushToNilSink(t *testing.T) {
	buffer := NewEventBuffer("test", 10, nil)
	bufferEvents(buffer, 3)

	flushed, err := buffer.Flush(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, flushed)
	assert.Equal(t, 3, buffer.Len(), "events stay buffered without a sink")
}

func TestEventBuffer_FailedFlushKeepsEvents(t *testing.T) {
	buffer := NewEventBuffer("test", 10, nil)
	bufferEvents(buffer, 4)

	sink := &recordingSink{failing: true}
	flushed, err := buffer.Flush(context.Background(), sink)

	require.Error(t, err)
	assert.Zero(t, flushed)
	assert.Equal(t, 4, buffer.Len(), "a failed flush must not lose events")
}

func TestEventBuffer_FlushPreservesConcurrentAppends(t *testing.T) {
	buffer := NewEventBuffer("test", 10, nil)
	bufferEvents(buffer, 3)

	// A sink that appends to the buffer mid-flush stands in for a
	// concurrent producer.
	sink := &appendingSink{buffer: buffer}
	flushed, err := buffer.Flush(context.Background(), sink)

	require.NoError(t, err)
	assert.Equal(t, 3, flushed)
	assert.Equal(t, 1, buffer.Len(), "the event appended during the flush survives")
}

type appendingSink struct {
	buffer *EventBuffer
}

func (s *appendingSink) Write(ctx context.Context, events []Event) error {
	s.buffer.Append(NewEvent("logging", "late_arrival", nil))
	return nil
}

func (s *appendingSink) Healthy(ctx context.Context) bool { return true }

func TestEventBuffer_FlushSurvivesOverflowDuringWrite(t *testing.T) {
	buffer := NewEventBuffer("test", 3, nil)
	for _, id := range []string{"old-0", "old-1", "old-2"} {
		buffer.Append(Event{ID: id, Component: "logging"})
	}

	// The sink fills the buffer mid-write, so every snapshot event is
	// already dropped by the time the flush removal runs.
	sink := &overflowingSink{buffer: buffer, appends: 3}
	flushed, err := buffer.Flush(context.Background(), sink)

	require.NoError(t, err)
	assert.Equal(t, 3, flushed)
	assert.Equal(t, 3, buffer.Len(), "events appended during the flush must not be discarded")

	// Drain again to prove the survivors are the new events
	drain := &recordingSink{healthy: true}
	_, err = buffer.Flush(context.Background(), drain)
	require.NoError(t, err)
	require.Len(t, drain.writes, 1)
	assert.Equal(t, "new-0", drain.writes[0][0].ID)
	assert.Equal(t, "new-2", drain.writes[0][2].ID)
}

func TestEventBuffer_FlushPartialOverflowDuringWrite(t *testing.T) {
	buffer := NewEventBuffer("test", 3, nil)
	for _, id := range []string{"old-0", "old-1", "old-2"} {
		buffer.Append(Event{ID: id, Component: "logging"})
	}

	sink := &overflowingSink{buffer: buffer, appends: 1}
	flushed, err := buffer.Flush(context.Background(), sink)

	require.NoError(t, err)
	assert.Equal(t, 3, flushed)
	assert.Equal(t, 1, buffer.Len())

	drain := &recordingSink{healthy: true}
	_, err = buffer.Flush(context.Background(), drain)
	require.NoError(t, err)
	require.Len(t, drain.writes, 1)
	assert.Equal(t, "new-0", drain.writes[0][0].ID)
}

// overflowingSink appends enough events mid-write to overflow the buffer
type overflowingSink struct {
	buffer  *EventBuffer
	appends int
}

func (s *overflowingSink) Write(ctx context.Context, events []Event) error {
	for i := 0; i < s.appends; i++ {
		s.buffer.Append(Event{ID: fmt.Sprintf("new-%d", i), Component: "logging"})
	}
	return nil
}

func (s *overflowingSink) Healthy(ctx context.Context) bool { return true }

func TestEventBuffer_TrimOldest(t *testing.T) {
	buffer := NewEventBuffer("test", 10, nil)

	for i := 0; i < 6; i++ {
		buffer.Append(Event{ID: fmt.Sprintf("event-%d", i)})
	}

	trimmed := buffer.TrimOldest()
	assert.Equal(t, 3, trimmed)
	assert.Equal(t, 3, buffer.Len())

	// The newest half remains
	sink := &recordingSink{healthy: true}
	_, err := buffer.Flush(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, "event-3", sink.writes[0][0].ID)
}

func TestEventBuffer_TrimOldestOnEmpty(t *testing.T) {
	buffer := NewEventBuffer("test", 10, nil)
	assert.Zero(t, buffer.TrimOldest())
}

func TestNewEvent_PopulatesIdentity(t *testing.T) {
	event := NewEvent("storage", "write_failed", map[string]string{"path": "/tmp"})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "storage", event.Component)
	assert.Equal(t, "write_failed", event.Kind)
	assert.False(t, event.Timestamp.IsZero())
}

package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/obsguard/obsguard/pkg/logging"
	"github.com/obsguard/obsguard/pkg/metrics"
)

// Event is a telemetry event held locally while its primary sink is down
type Event struct {
	ID        string            `json:"id"`
	Component string            `json:"component"`
	Kind      string            `json:"kind"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEvent creates an event for local buffering
func NewEvent(component, kind string, payload map[string]string) Event {
	return Event{
		ID:        uuid.New().String(),
		Component: component,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Sink is the injected destination buffered events are flushed to once the
// primary recovers. The core never touches disk or network directly.
type Sink interface {
	Write(ctx context.Context, events []Event) error
	Healthy(ctx context.Context) bool
}

// EventBuffer is a bounded ring buffer backing the local-storage and
// cache-fallback recovery strategies. On overflow the oldest event is
// dropped.
type EventBuffer struct {
	mutex    sync.Mutex
	name     string
	events   []Event
	capacity int
	dropped  uint64
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewEventBuffer creates a bounded event buffer
func NewEventBuffer(name string, capacity int, m *metrics.Metrics) *EventBuffer {
	if capacity <= 0 {
		capacity = 1000
	}

	return &EventBuffer{
		name:     name,
		events:   make([]Event, 0, capacity),
		capacity: capacity,
		logger:   logging.GetLogger(),
		metrics:  m,
	}
}

// Append adds an event, dropping the oldest one if the buffer is full
func (b *EventBuffer) Append(event Event) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if len(b.events) >= b.capacity {
		b.events = b.events[1:]
		b.dropped++
		if b.metrics != nil {
			b.metrics.RecordDroppedEvent(b.name)
		}
	}

	b.events = append(b.events, event)

	if b.metrics != nil {
		b.metrics.UpdateBufferedEvents(b.name, len(b.events))
	}
}

// Len returns the number of buffered events
func (b *EventBuffer) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.events)
}

// Dropped returns the number of events dropped on overflow
func (b *EventBuffer) Dropped() uint64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.dropped
}

// TrimOldest discards the oldest half of the buffer. Used as local
// remediation when storage pressure is reported.
func (b *EventBuffer) TrimOldest() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	trimmed := len(b.events) / 2
	if trimmed == 0 {
		return 0
	}

	b.events = append(b.events[:0:0], b.events[trimmed:]...)

	if b.metrics != nil {
		b.metrics.UpdateBufferedEvents(b.name, len(b.events))
	}

	b.logger.Warn("Event buffer trimmed under storage pressure",
		"buffer", b.name,
		"trimmed", trimmed,
		"remaining", len(b.events),
	)

	return trimmed
}

// Flush writes all buffered events to the sink. Events are only removed
// from the buffer after the sink accepts them; new events appended during
// the write are preserved.
func (b *EventBuffer) Flush(ctx context.Context, sink Sink) (int, error) {
	if sink == nil {
		return 0, nil
	}

	b.mutex.Lock()
	if len(b.events) == 0 {
		b.mutex.Unlock()
		return 0, nil
	}
	snapshot := make([]Event, len(b.events))
	copy(snapshot, b.events)
	droppedBefore := b.dropped
	b.mutex.Unlock()

	if err := sink.Write(ctx, snapshot); err != nil {
		if b.metrics != nil {
			b.metrics.RecordFlushedEvents(b.name, "error", 0)
		}
		return 0, err
	}

	b.mutex.Lock()
	// Remove exactly the flushed events still in the buffer. Overflow drops
	// during the write already removed snapshot events from the front, so
	// only the surviving prefix is cut; anything appended since the
	// snapshot stays.
	remove := len(snapshot) - int(b.dropped-droppedBefore)
	if remove < 0 {
		remove = 0
	}
	if remove > len(b.events) {
		remove = len(b.events)
	}
	b.events = append(b.events[:0:0], b.events[remove:]...)
	remaining := len(b.events)
	b.mutex.Unlock()

	if b.metrics != nil {
		b.metrics.RecordFlushedEvents(b.name, "success", len(snapshot))
		b.metrics.UpdateBufferedEvents(b.name, remaining)
	}

	b.logger.Info("Event buffer flushed",
		"buffer", b.name,
		"flushed", len(snapshot),
		"remaining", remaining,
	)

	return len(snapshot), nil
}

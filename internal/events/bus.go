package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives events for a subscribed type. Handlers run on a single
// dispatch goroutine per bus, so they must not block for long.
type Handler func(event *Event)

// Bus is an in-process publish/subscribe fan-out for events. Emission is
// non-blocking: events are queued on a buffered channel and dropped with a
// warning when the dispatcher falls behind.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	queue    chan *Event
	done     chan struct{}
	closeOne sync.Once
	log      zerolog.Logger
}

// NewBus creates a bus and starts its dispatch goroutine.
func NewBus(log zerolog.Logger) *Bus {
	b := &Bus{
		handlers: make(map[EventType][]Handler),
		queue:    make(chan *Event, 256),
		done:     make(chan struct{}),
		log:      log.With().Str("service", "event_bus").Logger(),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit queues an event for delivery. Drops the event if the queue is full.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	select {
	case b.queue <- event:
	case <-b.done:
	default:
		b.log.Warn().
			Str("event_type", string(eventType)).
			Str("module", module).
			Msg("Event queue full, dropping event")
	}
}

// Close stops the dispatch goroutine. Events queued but not yet delivered
// are discarded.
func (b *Bus) Close() {
	b.closeOne.Do(func() {
		close(b.done)
	})
}

func (b *Bus) dispatch() {
	for {
		select {
		case <-b.done:
			return
		case event := <-b.queue:
			b.mu.RLock()
			handlers := b.handlers[event.Type]
			b.mu.RUnlock()
			for _, h := range handlers {
				h(event)
			}
		}
	}
}

package bus

import (
	"sync"

	"github.com/sendnode/wagateway/pkg/event"
	"github.com/sendnode/wagateway/pkg/logger"
)

// Handler receives one published event. Handlers run on the publisher's
// goroutine in registration order; anything slow (HTTP, broker I/O) belongs in
// a goroutine the handler spawns itself so it cannot hold up later handlers.
type Handler func(event.Event)

// EventBus is the in-process fan-out point between the connection factory and
// the delivery sinks. Subscriptions are process-lifetime; there is no
// unsubscribe.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[event.Kind][]Handler

	observers []chan event.Event
	obsMu     sync.RWMutex
}

func New() *EventBus {
	return &EventBus{
		handlers: make(map[event.Kind][]Handler),
	}
}

// Subscribe registers a handler for one event kind.
func (b *EventBus) Subscribe(kind event.Kind, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.handlers[kind] = append(b.handlers[kind], h)
	b.mu.Unlock()
}

// Publish delivers evt to every handler registered for its kind, in
// registration order. A panicking handler is contained so one bad subscriber
// cannot take down the socket callback that published the event.
func (b *EventBus) Publish(evt event.Event) {
	if evt == nil {
		return
	}

	b.mu.RLock()
	handlers := b.handlers[evt.EventKind()]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, evt)
	}

	b.notifyObservers(evt)
}

func (b *EventBus) invoke(h Handler, evt event.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("bus", "Event handler panicked", map[string]interface{}{
				"kind":    string(evt.EventKind()),
				"session": evt.Session(),
				"panic":   r,
			})
		}
	}()
	h(evt)
}

// Observe returns a channel that receives copies of all published events,
// regardless of kind. Delivery is non-blocking: slow observers miss events.
func (b *EventBus) Observe() chan event.Event {
	ch := make(chan event.Event, 50)
	b.obsMu.Lock()
	b.observers = append(b.observers, ch)
	b.obsMu.Unlock()
	return ch
}

// Unobserve removes an observer channel and closes it.
func (b *EventBus) Unobserve(ch chan event.Event) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	for i, obs := range b.observers {
		if obs == ch {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (b *EventBus) notifyObservers(evt event.Event) {
	b.obsMu.RLock()
	defer b.obsMu.RUnlock()
	for _, obs := range b.observers {
		select {
		case obs <- evt:
		default:
			// Non-blocking: skip slow observers
		}
	}
}

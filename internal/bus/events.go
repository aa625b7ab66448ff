package bus

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"topicrelay/internal/domain"
)

// Well-known event types.
const (
	EventRouted = "relay.routed" // one per routing pass, Report filled in
)

// Event is an internal notification about completed relay work.
type Event struct {
	Type      string
	Report    domain.RouteReport
	Timestamp time.Time
}

// EventHandler is a callback for events.
type EventHandler func(Event)

type namedHandler struct {
	ID      string
	Handler EventHandler
}

// EventBus is a synchronous, topic-based publish/subscribe hub. A panicking
// handler is logged and does not affect other handlers or the emitter.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	nextID   int
	logger   *slog.Logger
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[string][]namedHandler),
		logger:   logger,
	}
}

// On registers a handler for eventType ("*" for all events) and returns its
// ID for Off.
func (eb *EventBus) On(eventType string, handler EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eventType + "-" + strconv.Itoa(eb.nextID)
	eb.handlers[eventType] = append(eb.handlers[eventType], namedHandler{ID: id, Handler: handler})
	return id
}

func (eb *EventBus) Off(eventType, handlerID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	hs := eb.handlers[eventType]
	for i, h := range hs {
		if h.ID == handlerID {
			eb.handlers[eventType] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// Emit calls every matching handler in registration order, specific handlers
// before wildcard ones.
func (eb *EventBus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	var hs []namedHandler
	hs = append(hs, eb.handlers[event.Type]...)
	hs = append(hs, eb.handlers["*"]...)
	eb.mu.RUnlock()

	for _, h := range hs {
		eb.call(h, event)
	}
}

func (eb *EventBus) call(h namedHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "event", event.Type, "handler", h.ID, "panic", r)
		}
	}()
	h.Handler(event)
}

package bus

import (
	"log/slog"
	"os"
	"sync/atomic"
	"testing"

	"topicrelay/internal/domain"
)

func testEBLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestEventBus_EmitAndReceive(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var got domain.RouteReport
	eb.On(EventRouted, func(e Event) { got = e.Report })

	eb.Emit(Event{Type: EventRouted, Report: domain.RouteReport{RouteID: "r-1", SenderID: 7}})

	if got.RouteID != "r-1" || got.SenderID != 7 {
		t.Fatalf("handler did not receive report: %+v", got)
	}
}

func TestEventBus_WildcardHandler(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var count int32
	eb.On("*", func(e Event) { atomic.AddInt32(&count, 1) })

	eb.Emit(Event{Type: "event.a"})
	eb.Emit(Event{Type: "event.b"})

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestEventBus_Off(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var count int32
	id := eb.On(EventRouted, func(e Event) { atomic.AddInt32(&count, 1) })

	eb.Emit(Event{Type: EventRouted})
	eb.Off(EventRouted, id)
	eb.Emit(Event{Type: EventRouted})

	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("expected 1 after unsubscribe, got %d", count)
	}
}

func TestEventBus_OffKeepsOtherHandlers(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var a, b int32
	idA := eb.On(EventRouted, func(e Event) { atomic.AddInt32(&a, 1) })
	eb.On(EventRouted, func(e Event) { atomic.AddInt32(&b, 1) })
	eb.Off(EventRouted, idA)
	eb.Emit(Event{Type: EventRouted})

	if a != 0 || b != 1 {
		t.Fatalf("expected a=0 b=1, got a=%d b=%d", a, b)
	}
}

func TestEventBus_PanicIsolated(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var called int32
	eb.On(EventRouted, func(e Event) { panic("boom") })
	eb.On(EventRouted, func(e Event) { atomic.AddInt32(&called, 1) })

	eb.Emit(Event{Type: EventRouted})

	if atomic.LoadInt32(&called) != 1 {
		t.Fatal("second handler should run after first panics")
	}
}

func TestEventBus_SetsTimestamp(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var stamped bool
	eb.On(EventRouted, func(e Event) { stamped = !e.Timestamp.IsZero() })
	eb.Emit(Event{Type: EventRouted})

	if !stamped {
		t.Fatal("expected Emit to fill in the timestamp")
	}
}

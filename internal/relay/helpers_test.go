package relay

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"topicrelay/internal/config"
	"topicrelay/internal/domain"
)

const (
	testGroup  int64 = -1003356712572
	testSource       = 2
	biete            = domain.DestinationID(3)
	suche            = domain.DestinationID(4)
)

var errSend = errors.New("Bad Request: message thread not found")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testRoutes() []config.Route {
	return []config.Route{
		{Marker: "#biete", ThreadID: 3, Name: "Biete"},
		{Marker: "#suche", ThreadID: 4, Name: "Suche"},
	}
}

type sentItem struct {
	dest  domain.DestinationID
	text  bool
	media domain.Media
	body  string // text body or media caption
}

// fakeDeliverer records every send and fails the ones it is told to.
type fakeDeliverer struct {
	mu        sync.Mutex
	sent      []sentItem
	failText  map[domain.DestinationID]bool
	failMedia map[domain.DestinationID]bool
	panicOn   string
	nextID    int
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{
		failText:  make(map[domain.DestinationID]bool),
		failMedia: make(map[domain.DestinationID]bool),
	}
}

func (f *fakeDeliverer) SendText(ctx context.Context, dest domain.DestinationID, body string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn != "" && f.panicOn == body {
		panic("deliverer exploded")
	}
	f.sent = append(f.sent, sentItem{dest: dest, text: true, body: body})
	if f.failText[dest] {
		return 0, errSend
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeDeliverer) SendMedia(ctx context.Context, dest domain.DestinationID, media domain.Media, caption string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentItem{dest: dest, media: media, body: caption})
	if f.failMedia[dest] {
		return 0, errSend
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeDeliverer) items() []sentItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentItem(nil), f.sent...)
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	router    *Router
	contexts  *ContextStore
	deliverer *fakeDeliverer
	clock     *fakeClock
}

func newHarness(window time.Duration) *harness {
	clock := newFakeClock()
	contexts := NewContextStore(window, testLogger())
	d := newFakeDeliverer()
	r := NewRouter(RouterConfig{
		Classifier:        NewClassifier(testRoutes()),
		Contexts:          contexts,
		Deliverer:         d,
		AttributionPrefix: "📨 Von",
		Logger:            testLogger(),
		Now:               clock.Now,
	})
	return &harness{router: r, contexts: contexts, deliverer: d, clock: clock}
}

func message(senderID int64, text string) domain.InboundMessage {
	return domain.InboundMessage{
		UpdateID: 1,
		VenueID:  testGroup,
		ThreadID: testSource,
		Sender:   &domain.Sender{ID: senderID, DisplayName: "Anna"},
		Text:     text,
	}
}

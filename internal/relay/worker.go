package relay

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"topicrelay/internal/domain"
	"topicrelay/internal/metrics"
)

// WorkerPool takes messages off the bus, filters them and routes them with
// bounded concurrency.
type WorkerPool struct {
	bus         domain.MessageBus
	filter      *IngressFilter
	router      *Router
	concurrency int
	logger      *slog.Logger
}

type WorkerPoolConfig struct {
	Bus         domain.MessageBus
	Filter      *IngressFilter
	Router      *Router
	Concurrency int
	Logger      *slog.Logger
}

func NewWorkerPool(cfg WorkerPoolConfig) *WorkerPool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &WorkerPool{
		bus:         cfg.Bus,
		filter:      cfg.Filter,
		router:      cfg.Router,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// Run processes messages until ctx is cancelled or the bus is closed, then
// waits for in-flight routes. A route that has started always runs to
// completion: it is detached from ctx's cancellation.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.logger.Info("relay workers started", "concurrency", p.concurrency)

	var wg sync.WaitGroup
	defer wg.Wait()

	sem := make(chan struct{}, p.concurrency)
	inbound := p.bus.Subscribe()
	routeCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("relay workers stopping")
			return nil
		case msg, ok := <-inbound:
			if !ok {
				p.logger.Info("inbound channel closed, relay workers stopping")
				return nil
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(m domain.InboundMessage) {
				defer wg.Done()
				defer func() { <-sem }()
				p.Handle(routeCtx, m)
			}(msg)
		}
	}
}

// Handle filters and routes a single message. Panics are logged and
// swallowed so one bad update cannot take the process down.
func (p *WorkerPool) Handle(ctx context.Context, msg domain.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RoutePanics.Inc()
			p.logger.Error("panic while routing update",
				"update_id", msg.UpdateID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	metrics.MessagesReceived.Inc()
	if !p.filter.Accept(msg) {
		metrics.MessagesRejected.Inc()
		p.logger.Debug("message outside monitored thread, skipping",
			"update_id", msg.UpdateID,
			"chat_id", msg.VenueID,
			"thread_id", msg.ThreadID,
			"has_sender", msg.Sender != nil,
		)
		return
	}
	p.router.Route(ctx, msg)
}

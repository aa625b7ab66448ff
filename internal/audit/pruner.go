package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes audit rows older than the retention period on a cron schedule.
type Pruner struct {
	store     *Store
	retention time.Duration
	schedule  cron.Schedule
	expr      string
	logger    *slog.Logger
	now       func() time.Time
}

// NewPruner parses expr as a standard 5-field cron expression.
func NewPruner(store *Store, retention time.Duration, expr string, logger *slog.Logger) (*Pruner, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", expr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:     store,
		retention: retention,
		schedule:  sched,
		expr:      expr,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Next returns the next scheduled run after t.
func (p *Pruner) Next(t time.Time) time.Time {
	return p.schedule.Next(t)
}

// PruneOnce removes everything older than the retention period.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	p.logger.Info("audit log pruned", "removed_routes", n, "cutoff", cutoff.Format(time.RFC3339))
	return n, nil
}

// Run prunes once at start, then on every scheduled tick until ctx is done.
func (p *Pruner) Run(ctx context.Context) error {
	if _, err := p.PruneOnce(ctx); err != nil {
		p.logger.Error("audit prune failed", "err", err)
	}

	c := cron.New()
	c.Schedule(p.schedule, cron.FuncJob(func() {
		if _, err := p.PruneOnce(ctx); err != nil {
			p.logger.Error("audit prune failed", "err", err)
		}
	}))
	c.Start()
	p.logger.Info("audit pruner started", "schedule", p.expr, "next", p.Next(p.now()).Format(time.RFC3339))

	<-ctx.Done()
	<-c.Stop().Done()
	p.logger.Info("audit pruner stopped")
	return nil
}

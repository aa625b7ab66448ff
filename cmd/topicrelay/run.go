package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"topicrelay/internal/audit"
	"topicrelay/internal/bus"
	"topicrelay/internal/channel"
	"topicrelay/internal/config"
	"topicrelay/internal/metrics"
	"topicrelay/internal/relay"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start relaying (Telegram poller + relay workers)",
		Long:  "Polls the forum supergroup and forwards marked posts until interrupted. Press Ctrl+C to stop.",
		RunE:  runRelay,
	}
}

func tokenConfigured(token string) bool {
	return token != "" && !strings.HasPrefix(token, "${")
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !tokenConfigured(cfg.Telegram.Token) {
		return errors.New("telegram.token is not set (config file, TELEGRAM_BOT_TOKEN or .env)")
	}

	log, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tg := channel.NewTelegram(channel.TelegramConfig{
		Token:          cfg.Telegram.Token,
		GroupID:        cfg.Relay.GroupID,
		PollTimeout:    cfg.Telegram.PollTimeout,
		RequestTimeout: time.Duration(cfg.Telegram.RequestTimeout) * time.Second,
		Logger:         logger,
	})
	if err := tg.Connect(); err != nil {
		return err
	}
	logBanner(cfg, tg.BotUsername())

	messageBus := bus.New(100, logger)
	events := bus.NewEventBus(logger)

	var store *audit.Store
	if cfg.Audit.Enabled {
		store, err = audit.Open(cfg.Audit.DBPath, logger)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		defer store.Close()
		store.Subscribe(events)
	}

	router := relay.NewRouter(relay.RouterConfig{
		Classifier:        relay.NewClassifier(cfg.Relay.Routes),
		Contexts:          relay.NewContextStore(cfg.Relay.ContextWindow.Std(), logger),
		Deliverer:         tg,
		Events:            events,
		AttributionPrefix: cfg.Relay.AttributionPrefix,
		Logger:            logger,
	})
	pool := relay.NewWorkerPool(relay.WorkerPoolConfig{
		Bus:         messageBus,
		Filter:      relay.NewIngressFilter(cfg.Relay.GroupID, cfg.Relay.SourceThreadID),
		Router:      router,
		Concurrency: cfg.Relay.Workers,
		Logger:      logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	// The poller owns the bus: closing it lets the workers drain and exit.
	g.Go(func() error {
		defer messageBus.Close()
		return tg.Start(gctx, messageBus)
	})
	g.Go(func() error {
		return pool.Run(context.WithoutCancel(gctx))
	})

	if cfg.Metrics.Enabled {
		startMetricsServer(gctx, g, cfg.Metrics)
	}

	if store != nil {
		pruner, err := audit.NewPruner(store, time.Duration(cfg.Audit.RetentionDays)*24*time.Hour, cfg.Audit.PruneSchedule, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return pruner.Run(gctx) })
	}

	logger.Info("relay started. Press Ctrl+C to stop.")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		logger.Info("relay stopped")
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down relay...")
	select {
	case err := <-done:
		if err != nil {
			return err
		}
		logger.Info("shutdown complete")
		return nil
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func startMetricsServer(ctx context.Context, g *errgroup.Group, cfg config.MetricsConfig) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Collector.Handler())
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("metrics endpoint listening", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// logBanner logs the effective relay setup with the token masked.
func logBanner(cfg *config.Config, botUsername string) {
	routes := make([]string, 0, len(cfg.Relay.Routes))
	for _, r := range cfg.Relay.Routes {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("thread %d", r.ThreadID)
		}
		routes = append(routes, fmt.Sprintf("%s->%d (%s)", r.Marker, r.ThreadID, name))
	}
	logger.Info("topicrelay starting",
		"version", version,
		"bot", botUsername,
		"token", config.MaskToken(cfg.Telegram.Token),
		"group_id", cfg.Relay.GroupID,
		"source_thread", cfg.Relay.SourceThreadID,
		"context_window", cfg.Relay.ContextWindow.String(),
		"routes", strings.Join(routes, ", "),
		"workers", cfg.Relay.Workers,
		"audit", cfg.Audit.Enabled,
		"metrics", cfg.Metrics.Enabled,
	)
}

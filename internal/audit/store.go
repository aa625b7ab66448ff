// Package audit keeps a SQLite log of every routing decision and delivery so
// operators can answer "did this post reach its topic" after the fact.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"topicrelay/internal/bus"
	"topicrelay/internal/domain"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed route and delivery log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one routing pass and its deliveries. Reports without a
// decision are not recorded.
func (s *Store) Record(ctx context.Context, r domain.RouteReport) error {
	if r.Decision == domain.DecisionNone || r.Decision == "" {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO routes (route_id, update_id, sender_id, decision, destinations, started_at, duration_ms, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RouteID, r.UpdateID, r.SenderID, string(r.Decision), joinDestinations(r.Destinations),
		r.Started.UnixMilli(), r.Duration.Milliseconds(), r.Failed(),
	); err != nil {
		return fmt.Errorf("insert route %s: %w", r.RouteID, err)
	}

	for _, d := range r.Deliveries {
		errText := ""
		if d.Err != nil {
			errText = d.Err.Error()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO deliveries (route_id, destination, content, message_id, error) VALUES (?, ?, ?, ?, ?)`,
			r.RouteID, int(d.Destination), string(d.Content), d.MessageID, errText,
		); err != nil {
			return fmt.Errorf("insert delivery for route %s: %w", r.RouteID, err)
		}
	}
	return tx.Commit()
}

// Subscribe records every EventRouted report. It returns the handler ID.
func (s *Store) Subscribe(events *bus.EventBus) string {
	return events.On(bus.EventRouted, func(e bus.Event) {
		if err := s.Record(context.Background(), e.Report); err != nil {
			s.logger.Error("audit record failed", "route_id", e.Report.RouteID, "err", err)
		}
	})
}

// DestinationStats counts deliveries into one topic.
type DestinationStats struct {
	Destination int
	Delivered   int
	Failed      int
}

// Stats summarizes recorded activity since a point in time.
type Stats struct {
	Since        time.Time
	Routes       int
	ByDecision   map[domain.Decision]int
	Deliveries   int
	Failed       int
	Destinations []DestinationStats
}

func (s *Store) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	st := &Stats{Since: since, ByDecision: make(map[domain.Decision]int)}
	from := since.UnixMilli()

	rows, err := s.db.QueryContext(ctx,
		`SELECT decision, COUNT(*) FROM routes WHERE started_at >= ? GROUP BY decision`, from)
	if err != nil {
		return nil, fmt.Errorf("query route stats: %w", err)
	}
	for rows.Next() {
		var (
			decision string
			n        int
		)
		if err := rows.Scan(&decision, &n); err != nil {
			rows.Close()
			return nil, err
		}
		st.ByDecision[domain.Decision(decision)] = n
		st.Routes += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT d.destination,
		        SUM(CASE WHEN d.error = '' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN d.error != '' THEN 1 ELSE 0 END)
		 FROM deliveries d JOIN routes r ON r.route_id = d.route_id
		 WHERE r.started_at >= ?
		 GROUP BY d.destination ORDER BY d.destination`, from)
	if err != nil {
		return nil, fmt.Errorf("query delivery stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ds DestinationStats
		if err := rows.Scan(&ds.Destination, &ds.Delivered, &ds.Failed); err != nil {
			return nil, err
		}
		st.Destinations = append(st.Destinations, ds)
		st.Deliveries += ds.Delivered + ds.Failed
		st.Failed += ds.Failed
	}
	return st, rows.Err()
}

// Prune deletes routes that started before the cutoff, with their deliveries,
// and returns the number of routes removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	cutoff := before.UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM deliveries WHERE route_id IN (SELECT route_id FROM routes WHERE started_at < ?)`, cutoff,
	); err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune routes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

func joinDestinations(dests []domain.DestinationID) string {
	parts := make([]string, len(dests))
	for i, d := range dests {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

package relay

import (
	"log/slog"
	"sync"
	"time"

	"topicrelay/internal/domain"
)

type senderContext struct {
	destinations []domain.DestinationID
	createdAt    time.Time
}

// ContextStore remembers each sender's last keyword-driven destinations for
// a fixed window. Entries expire lazily: an entry is only checked, and
// removed, when it is read.
type ContextStore struct {
	window time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[int64]senderContext
}

func NewContextStore(window time.Duration, logger *slog.Logger) *ContextStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextStore{
		window:  window,
		logger:  logger,
		entries: make(map[int64]senderContext),
	}
}

// expired reports whether an entry created at createdAt is past the window at now.
func expired(createdAt, now time.Time, window time.Duration) bool {
	return now.Sub(createdAt) > window
}

// Get returns the sender's live destinations, or nil. Reading never extends
// the window; reading an expired entry deletes it.
func (s *ContextStore) Get(senderID int64, now time.Time) []domain.DestinationID {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[senderID]
	if !ok {
		return nil
	}
	age := now.Sub(entry.createdAt)
	if expired(entry.createdAt, now, s.window) {
		delete(s.entries, senderID)
		s.logger.Info("sender context expired", "sender_id", senderID, "age", age)
		return nil
	}
	s.logger.Debug("sender context active", "sender_id", senderID, "destinations", entry.destinations, "age", age)
	return append([]domain.DestinationID(nil), entry.destinations...)
}

// Put replaces any existing entry for the sender.
func (s *ContextStore) Put(senderID int64, destinations []domain.DestinationID, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[senderID] = senderContext{
		destinations: append([]domain.DestinationID(nil), destinations...),
		createdAt:    now,
	}
	s.logger.Info("sender context updated", "sender_id", senderID, "destinations", destinations)
}

// Len returns the number of stored entries, expired or not.
func (s *ContextStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

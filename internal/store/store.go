// Package store provides storage backends for the relay log.
//
// The relay log is supporting infrastructure, not the checkpoint: it records
// every relayed message for operator replay and keeps the seen-item table used
// by the feed watcher. The authoritative watermark lives in the state file.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ChannelRelay/internal/models"
)

// RelayLog records relayed messages and published feed items.
type RelayLog interface {
	// RecordRelay inserts a relayed message record. Re-recording the same
	// source id overwrites the previous row.
	RecordRelay(m models.RelayedMessage) error

	// LastRelayed returns up to limit most recent relayed messages, newest first.
	LastRelayed(limit int) ([]models.RelayedMessage, error)

	// IsSeen checks whether a feed item uid has already been published.
	IsSeen(uid string) (bool, error)

	// MarkSeen inserts a seen record for uid. Returns false if the uid was
	// already recorded (duplicate).
	MarkSeen(uid string) (bool, error)

	// Close releases the underlying resources.
	Close() error
}

// Opts holds configuration options for database-backed relay logs.
type Opts struct {
	DSN string
}

// Option defines a configuration option for relay log construction.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite3" so callers can
// pick the matching backend. File paths are treated as SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryRelayLog is a relay log for tests and DSN-less runs.
type InMemoryRelayLog struct {
	mu      sync.Mutex
	relayed map[int64]models.RelayedMessage
	seen    map[string]time.Time
}

// NewInMemoryRelayLog creates an empty in-memory relay log.
func NewInMemoryRelayLog() *InMemoryRelayLog {
	return &InMemoryRelayLog{
		relayed: make(map[int64]models.RelayedMessage),
		seen:    make(map[string]time.Time),
	}
}

func (s *InMemoryRelayLog) RecordRelay(m models.RelayedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayed[m.SourceID] = m
	return nil
}

func (s *InMemoryRelayLog) LastRelayed(limit int) ([]models.RelayedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RelayedMessage, 0, len(s.relayed))
	for _, m := range s.relayed {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID > out[j].SourceID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryRelayLog) IsSeen(uid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[uid]
	return ok, nil
}

func (s *InMemoryRelayLog) MarkSeen(uid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[uid]; ok {
		return false, nil
	}
	s.seen[uid] = time.Now()
	return true, nil
}

func (s *InMemoryRelayLog) Close() error { return nil }

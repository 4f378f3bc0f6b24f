// Package store provides storage backends for the relay log.
//
// This file implements the PostgreSQL-backed relay log.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/ChannelRelay/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the maximum number of open connections to the database.
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 10
	// DefaultConnMaxLifetime is the maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresRelayLog struct {
	db *sql.DB
}

// NewPostgresRelayLog creates a new Postgres relay log based on provided options.
func NewPostgresRelayLog(opts ...Option) (*PostgresRelayLog, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresRelayLog invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresRelayLog DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresRelayLog{db: db}, nil
}

func (s *PostgresRelayLog) RecordRelay(m models.RelayedMessage) error {
	_, err := s.db.Exec(
		`INSERT INTO relayed_messages (source_id, translated_text, target_message_id, posted_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (source_id) DO UPDATE SET translated_text = $2, target_message_id = $3, posted_at = $4`,
		m.SourceID, m.TranslatedText, m.TargetMessageID, m.PostedAt)
	if err != nil {
		slog.Error("PostgresRelayLog RecordRelay failed", "error", err, "source_id", m.SourceID)
		return fmt.Errorf("failed to record relay of message %d: %w", m.SourceID, err)
	}
	slog.Debug("PostgresRelayLog RecordRelay succeeded", "source_id", m.SourceID, "target_message_id", m.TargetMessageID)
	return nil
}

func (s *PostgresRelayLog) LastRelayed(limit int) ([]models.RelayedMessage, error) {
	rows, err := s.db.Query(
		`SELECT source_id, translated_text, target_message_id, posted_at FROM relayed_messages ORDER BY source_id DESC LIMIT $1`,
		limit)
	if err != nil {
		slog.Error("PostgresRelayLog LastRelayed query failed", "error", err)
		return nil, fmt.Errorf("failed to query relayed messages: %w", err)
	}
	defer rows.Close()

	var out []models.RelayedMessage
	for rows.Next() {
		var m models.RelayedMessage
		if err := rows.Scan(&m.SourceID, &m.TranslatedText, &m.TargetMessageID, &m.PostedAt); err != nil {
			slog.Error("PostgresRelayLog LastRelayed scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan relayed message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresRelayLog LastRelayed rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate relayed message rows: %w", err)
	}
	return out, nil
}

func (s *PostgresRelayLog) IsSeen(uid string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM seen_items WHERE uid = $1`, uid).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("PostgresRelayLog IsSeen failed", "error", err, "uid", uid)
		return false, fmt.Errorf("failed to check seen item %s: %w", uid, err)
	}
	return true, nil
}

func (s *PostgresRelayLog) MarkSeen(uid string) (bool, error) {
	res, err := s.db.Exec(`INSERT INTO seen_items (uid, seen_at) VALUES ($1, $2) ON CONFLICT (uid) DO NOTHING`, uid, time.Now().UTC())
	if err != nil {
		slog.Error("PostgresRelayLog MarkSeen failed", "error", err, "uid", uid)
		return false, fmt.Errorf("failed to mark item %s seen: %w", uid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	slog.Debug("PostgresRelayLog MarkSeen", "uid", uid, "inserted", n > 0)
	return n > 0, nil
}

// Close closes the Postgres database connection.
func (s *PostgresRelayLog) Close() error {
	slog.Debug("Closing Postgres relay log")
	return s.db.Close()
}

// Package store provides storage backends for the relay log.
//
// This file implements the SQLite-backed relay log.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/ChannelRelay/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteRelayLog struct {
	db *sql.DB
}

// NewSQLiteRelayLog creates a new SQLite relay log. The DSN is a file path;
// the containing directory is created if missing.
func NewSQLiteRelayLog(opts ...Option) (*SQLiteRelayLog, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteRelayLog invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteRelayLog DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteRelayLog{db: db}, nil
}

func (s *SQLiteRelayLog) RecordRelay(m models.RelayedMessage) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO relayed_messages (source_id, translated_text, target_message_id, posted_at) VALUES (?, ?, ?, ?)`,
		m.SourceID, m.TranslatedText, m.TargetMessageID, m.PostedAt)
	if err != nil {
		slog.Error("SQLiteRelayLog RecordRelay failed", "error", err, "source_id", m.SourceID)
		return fmt.Errorf("failed to record relay of message %d: %w", m.SourceID, err)
	}
	slog.Debug("SQLiteRelayLog RecordRelay succeeded", "source_id", m.SourceID, "target_message_id", m.TargetMessageID)
	return nil
}

func (s *SQLiteRelayLog) LastRelayed(limit int) ([]models.RelayedMessage, error) {
	rows, err := s.db.Query(
		`SELECT source_id, translated_text, target_message_id, posted_at FROM relayed_messages ORDER BY source_id DESC LIMIT ?`,
		limit)
	if err != nil {
		slog.Error("SQLiteRelayLog LastRelayed query failed", "error", err)
		return nil, fmt.Errorf("failed to query relayed messages: %w", err)
	}
	defer rows.Close()

	var out []models.RelayedMessage
	for rows.Next() {
		var m models.RelayedMessage
		if err := rows.Scan(&m.SourceID, &m.TranslatedText, &m.TargetMessageID, &m.PostedAt); err != nil {
			slog.Error("SQLiteRelayLog LastRelayed scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan relayed message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteRelayLog LastRelayed rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate relayed message rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteRelayLog) IsSeen(uid string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM seen_items WHERE uid = ?`, uid).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("SQLiteRelayLog IsSeen failed", "error", err, "uid", uid)
		return false, fmt.Errorf("failed to check seen item %s: %w", uid, err)
	}
	return true, nil
}

func (s *SQLiteRelayLog) MarkSeen(uid string) (bool, error) {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO seen_items (uid, seen_at) VALUES (?, ?)`, uid, time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteRelayLog MarkSeen failed", "error", err, "uid", uid)
		return false, fmt.Errorf("failed to mark item %s seen: %w", uid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	slog.Debug("SQLiteRelayLog MarkSeen", "uid", uid, "inserted", n > 0)
	return n > 0, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteRelayLog) Close() error {
	slog.Debug("Closing SQLite relay log")
	return s.db.Close()
}

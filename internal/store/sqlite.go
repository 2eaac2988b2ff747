// Package store provides storage backends for conversation memory.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/pedidobot/pedidobot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversation memory in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
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

	return &SQLiteStore{db: db}, nil
}

// GetMemory retrieves the memory row for a customer, or (nil, nil) if absent.
func (s *SQLiteStore) GetMemory(customerID string) (*models.ConversationMemory, error) {
	query := `SELECT customer_id, flow_state, last_intent, data_buffer, cart_json,
			last_variant_id, last_qty_suggested, human_takeover, takeover_until,
			last_activity_at, created_at
		  FROM conversation_memories WHERE customer_id = ?`

	row := s.db.QueryRow(query, customerID)
	mem, err := scanMemoryRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetMemory not found", "customerID", customerID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetMemory failed", "error", err, "customerID", customerID)
		return nil, fmt.Errorf("failed to get memory for %s: %w", customerID, err)
	}
	return mem, nil
}

// SaveMemory inserts or replaces the memory row for mem.CustomerID.
func (s *SQLiteStore) SaveMemory(mem models.ConversationMemory) error {
	cartJSON, err := encodeCart(mem.CartLines)
	if err != nil {
		slog.Error("SQLiteStore SaveMemory cart marshal failed", "error", err, "customerID", mem.CustomerID)
		return err
	}

	query := `INSERT OR REPLACE INTO conversation_memories
		(customer_id, flow_state, last_intent, data_buffer, cart_json,
		 last_variant_id, last_qty_suggested, human_takeover, takeover_until,
		 last_activity_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query, mem.CustomerID, string(mem.FlowState), mem.LastIntent,
		mem.DataBuffer, cartJSON, mem.LastVariantID, mem.LastQtySuggested,
		boolToInt(mem.HumanTakeover), mem.TakeoverUntil, mem.LastActivityAt, mem.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveMemory failed", "error", err, "customerID", mem.CustomerID)
		return fmt.Errorf("failed to save memory for %s: %w", mem.CustomerID, err)
	}
	slog.Debug("SQLiteStore SaveMemory succeeded", "customerID", mem.CustomerID, "state", mem.FlowState)
	return nil
}

// DeleteMemory removes the memory row for a customer.
func (s *SQLiteStore) DeleteMemory(customerID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_memories WHERE customer_id = ?`, customerID)
	if err != nil {
		slog.Error("SQLiteStore DeleteMemory failed", "error", err, "customerID", customerID)
		return fmt.Errorf("failed to delete memory for %s: %w", customerID, err)
	}
	slog.Debug("SQLiteStore DeleteMemory succeeded", "customerID", customerID)
	return nil
}

// DeleteIdleMemories removes idle rows not under human takeover.
func (s *SQLiteStore) DeleteIdleMemories(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM conversation_memories WHERE last_activity_at < ? AND human_takeover = 0`, cutoff)
	if err != nil {
		slog.Error("SQLiteStore DeleteIdleMemories failed", "error", err)
		return 0, fmt.Errorf("failed to delete idle memories: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("SQLiteStore DeleteIdleMemories succeeded", "deleted", n)
	return int(n), nil
}

// ReactivateExpiredTakeovers clears expired timed takeovers.
func (s *SQLiteStore) ReactivateExpiredTakeovers(now time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE conversation_memories SET human_takeover = 0, takeover_until = NULL
		 WHERE human_takeover = 1 AND takeover_until IS NOT NULL AND takeover_until <= ?`, now)
	if err != nil {
		slog.Error("SQLiteStore ReactivateExpiredTakeovers failed", "error", err)
		return 0, fmt.Errorf("failed to reactivate takeovers: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("SQLiteStore ReactivateExpiredTakeovers succeeded", "updated", n)
	return int(n), nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeCart(lines []models.CartLine) (string, error) {
	if len(lines) == 0 {
		return "", nil
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cart lines: %w", err)
	}
	return string(b), nil
}

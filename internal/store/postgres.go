// Package store provides storage backends for conversation memory.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/pedidobot/pedidobot/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversation memory in PostgreSQL. Use this backend
// when more than one process serves the same WhatsApp number.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running PostgreSQL migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// GetMemory retrieves the memory row for a customer, or (nil, nil) if absent.
func (s *PostgresStore) GetMemory(customerID string) (*models.ConversationMemory, error) {
	query := `SELECT customer_id, flow_state, last_intent, data_buffer, cart_json,
			last_variant_id, last_qty_suggested, human_takeover, takeover_until,
			last_activity_at, created_at
		  FROM conversation_memories WHERE customer_id = $1`

	row := s.db.QueryRow(query, customerID)
	mem, err := scanMemoryRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetMemory not found", "customerID", customerID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetMemory failed", "error", err, "customerID", customerID)
		return nil, fmt.Errorf("failed to get memory for %s: %w", customerID, err)
	}
	return mem, nil
}

// SaveMemory inserts or updates the memory row for mem.CustomerID.
func (s *PostgresStore) SaveMemory(mem models.ConversationMemory) error {
	cartJSON, err := encodeCart(mem.CartLines)
	if err != nil {
		slog.Error("PostgresStore SaveMemory cart marshal failed", "error", err, "customerID", mem.CustomerID)
		return err
	}

	query := `INSERT INTO conversation_memories
		(customer_id, flow_state, last_intent, data_buffer, cart_json,
		 last_variant_id, last_qty_suggested, human_takeover, takeover_until,
		 last_activity_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (customer_id) DO UPDATE SET
			flow_state = EXCLUDED.flow_state,
			last_intent = EXCLUDED.last_intent,
			data_buffer = EXCLUDED.data_buffer,
			cart_json = EXCLUDED.cart_json,
			last_variant_id = EXCLUDED.last_variant_id,
			last_qty_suggested = EXCLUDED.last_qty_suggested,
			human_takeover = EXCLUDED.human_takeover,
			takeover_until = EXCLUDED.takeover_until,
			last_activity_at = EXCLUDED.last_activity_at`

	_, err = s.db.Exec(query, mem.CustomerID, string(mem.FlowState), mem.LastIntent,
		mem.DataBuffer, cartJSON, mem.LastVariantID, mem.LastQtySuggested,
		mem.HumanTakeover, mem.TakeoverUntil, mem.LastActivityAt, mem.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveMemory failed", "error", err, "customerID", mem.CustomerID)
		return fmt.Errorf("failed to save memory for %s: %w", mem.CustomerID, err)
	}
	slog.Debug("PostgresStore SaveMemory succeeded", "customerID", mem.CustomerID, "state", mem.FlowState)
	return nil
}

// DeleteMemory removes the memory row for a customer.
func (s *PostgresStore) DeleteMemory(customerID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_memories WHERE customer_id = $1`, customerID)
	if err != nil {
		slog.Error("PostgresStore DeleteMemory failed", "error", err, "customerID", customerID)
		return fmt.Errorf("failed to delete memory for %s: %w", customerID, err)
	}
	return nil
}

// DeleteIdleMemories removes idle rows not under human takeover.
func (s *PostgresStore) DeleteIdleMemories(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM conversation_memories WHERE last_activity_at < $1 AND human_takeover = FALSE`, cutoff)
	if err != nil {
		slog.Error("PostgresStore DeleteIdleMemories failed", "error", err)
		return 0, fmt.Errorf("failed to delete idle memories: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("PostgresStore DeleteIdleMemories succeeded", "deleted", n)
	return int(n), nil
}

// ReactivateExpiredTakeovers clears expired timed takeovers.
func (s *PostgresStore) ReactivateExpiredTakeovers(now time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE conversation_memories SET human_takeover = FALSE, takeover_until = NULL
		 WHERE human_takeover = TRUE AND takeover_until IS NOT NULL AND takeover_until <= $1`, now)
	if err != nil {
		slog.Error("PostgresStore ReactivateExpiredTakeovers failed", "error", err)
		return 0, fmt.Errorf("failed to reactivate takeovers: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the PostgreSQL connection pool.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL connection pool")
	return s.db.Close()
}

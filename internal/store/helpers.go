package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pedidobot/pedidobot/internal/models"
)

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemoryRow scans a ConversationMemory from a single row. The cart is
// stored as JSON; a malformed payload is logged and treated as an empty
// cart rather than failing the read.
func scanMemoryRow(row rowScanner) (*models.ConversationMemory, error) {
	var mem models.ConversationMemory
	var state string
	var cartJSON sql.NullString
	var takeoverUntil sql.NullTime
	err := row.Scan(
		&mem.CustomerID, &state, &mem.LastIntent, &mem.DataBuffer, &cartJSON,
		&mem.LastVariantID, &mem.LastQtySuggested, &mem.HumanTakeover,
		&takeoverUntil, &mem.LastActivityAt, &mem.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	mem.FlowState = models.StateType(state)
	if takeoverUntil.Valid {
		t := takeoverUntil.Time
		mem.TakeoverUntil = &t
	}
	if cartJSON.Valid && cartJSON.String != "" {
		if err := json.Unmarshal([]byte(cartJSON.String), &mem.CartLines); err != nil {
			slog.Error("scanMemoryRow cart unmarshal failed, treating as empty", "error", err, "customerID", mem.CustomerID)
			mem.CartLines = nil
		}
	}
	return &mem, nil
}

// NewStore builds a Store from options, choosing the backend by DSN type.
// With no DSN configured it falls back to the in-memory store.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("NewStore: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		st, err := NewPostgresStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return st, nil
	}
	st, err := NewSQLiteStore(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	return st, nil
}

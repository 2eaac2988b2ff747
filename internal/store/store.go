// Package store provides storage backends for conversation memory.
//
// It includes an in-memory store for tests, an SQLite store for single-node
// deployments and a PostgreSQL store for shared deployments.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pedidobot/pedidobot/internal/models"
)

// Store is the persistence contract for conversation memory. GetMemory
// returns (nil, nil) when no row exists for the customer.
type Store interface {
	GetMemory(customerID string) (*models.ConversationMemory, error)
	SaveMemory(mem models.ConversationMemory) error
	DeleteMemory(customerID string) error

	// DeleteIdleMemories removes rows whose last activity is before cutoff.
	// Rows under human takeover are never removed. Returns the number of
	// rows deleted.
	DeleteIdleMemories(cutoff time.Time) (int, error)

	// ReactivateExpiredTakeovers clears takeover flags whose deadline has
	// passed, letting the bot resume. Returns the number of rows updated.
	ReactivateExpiredTakeovers(now time.Time) (int, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite3" so callers can
// pick a backend without a separate driver flag.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore keeps conversation memory in a map. Used in tests and when
// no database DSN is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	memories map[string]models.ConversationMemory
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{memories: make(map[string]models.ConversationMemory)}
}

// GetMemory returns the memory for a customer, or (nil, nil) when absent.
func (s *InMemoryStore) GetMemory(customerID string) (*models.ConversationMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mem, ok := s.memories[customerID]
	if !ok {
		return nil, nil
	}
	cp := mem
	cp.CartLines = append([]models.CartLine(nil), mem.CartLines...)
	if mem.TakeoverUntil != nil {
		t := *mem.TakeoverUntil
		cp.TakeoverUntil = &t
	}
	return &cp, nil
}

// SaveMemory inserts or replaces the memory row for mem.CustomerID.
func (s *InMemoryStore) SaveMemory(mem models.ConversationMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mem.CartLines = append([]models.CartLine(nil), mem.CartLines...)
	s.memories[mem.CustomerID] = mem
	return nil
}

// DeleteMemory removes the memory row for a customer, if present.
func (s *InMemoryStore) DeleteMemory(customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, customerID)
	return nil
}

// DeleteIdleMemories removes idle rows not under human takeover.
func (s *InMemoryStore) DeleteIdleMemories(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, mem := range s.memories {
		if mem.HumanTakeover {
			continue
		}
		if mem.LastActivityAt.Before(cutoff) {
			delete(s.memories, id)
			deleted++
		}
	}
	return deleted, nil
}

// ReactivateExpiredTakeovers clears expired timed takeovers.
func (s *InMemoryStore) ReactivateExpiredTakeovers(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for id, mem := range s.memories {
		if mem.HumanTakeover && mem.TakeoverUntil != nil && !now.Before(*mem.TakeoverUntil) {
			mem.HumanTakeover = false
			mem.TakeoverUntil = nil
			s.memories[id] = mem
			updated++
		}
	}
	return updated, nil
}

// ListCustomerIDs returns all customer ids in the store, sorted. Test helper.
func (s *InMemoryStore) ListCustomerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.memories))
	for id := range s.memories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

// Package flow implements the WhatsApp dialogue engine: conversation
// memory, the onboarding gate, the human-takeover supervisor and the
// ordering state machine.
package flow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pedidobot/pedidobot/internal/models"
	"github.com/pedidobot/pedidobot/internal/store"
)

// MemoryUpdate is a partial update of a conversation memory row. Nil fields
// are left unchanged. ClearTakeoverUntil removes the takeover deadline,
// which a nil TakeoverUntil cannot express.
type MemoryUpdate struct {
	FlowState          *models.StateType
	LastIntent         *string
	DataBuffer         *string
	CartLines          *[]models.CartLine
	LastVariantID      *int64
	LastQtySuggested   *int
	HumanTakeover      *bool
	TakeoverUntil      *time.Time
	ClearTakeoverUntil bool
}

// MemoryManager mediates all access to conversation memory. Every write
// refreshes LastActivityAt so the idle sweep sees live conversations.
type MemoryManager struct {
	store store.Store
}

// NewMemoryManager creates a memory manager backed by the given store.
func NewMemoryManager(st store.Store) *MemoryManager {
	return &MemoryManager{store: st}
}

// GetOrCreate returns the memory row for a customer, creating an empty one
// on first contact.
func (m *MemoryManager) GetOrCreate(customerID string) (*models.ConversationMemory, error) {
	mem, err := m.store.GetMemory(customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory for %s: %w", customerID, err)
	}
	if mem != nil {
		return mem, nil
	}
	now := time.Now()
	fresh := models.ConversationMemory{
		CustomerID:     customerID,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := m.store.SaveMemory(fresh); err != nil {
		return nil, fmt.Errorf("failed to create memory for %s: %w", customerID, err)
	}
	slog.Debug("MemoryManager.GetOrCreate: created new memory", "customerID", customerID)
	return &fresh, nil
}

// Read returns the memory row for a customer, or nil when none exists.
func (m *MemoryManager) Read(customerID string) (*models.ConversationMemory, error) {
	return m.store.GetMemory(customerID)
}

// Write applies a partial update to a customer's memory, creating the row
// if needed, and refreshes LastActivityAt.
func (m *MemoryManager) Write(customerID string, upd MemoryUpdate) error {
	mem, err := m.GetOrCreate(customerID)
	if err != nil {
		return err
	}
	if upd.FlowState != nil {
		mem.FlowState = *upd.FlowState
	}
	if upd.LastIntent != nil {
		mem.LastIntent = *upd.LastIntent
	}
	if upd.DataBuffer != nil {
		mem.DataBuffer = *upd.DataBuffer
	}
	if upd.CartLines != nil {
		mem.CartLines = *upd.CartLines
	}
	if upd.LastVariantID != nil {
		mem.LastVariantID = *upd.LastVariantID
	}
	if upd.LastQtySuggested != nil {
		mem.LastQtySuggested = *upd.LastQtySuggested
	}
	if upd.HumanTakeover != nil {
		mem.HumanTakeover = *upd.HumanTakeover
	}
	if upd.TakeoverUntil != nil {
		mem.TakeoverUntil = upd.TakeoverUntil
	}
	if upd.ClearTakeoverUntil {
		mem.TakeoverUntil = nil
	}
	mem.LastActivityAt = time.Now()
	if err := m.store.SaveMemory(*mem); err != nil {
		return fmt.Errorf("failed to save memory for %s: %w", customerID, err)
	}
	slog.Debug("MemoryManager.Write: memory updated", "customerID", customerID, "state", mem.FlowState)
	return nil
}

// ResetFlow clears the flow fields of a memory row after a completed or
// abandoned flow. Takeover flags are left untouched.
func (m *MemoryManager) ResetFlow(customerID string) error {
	empty := ""
	return m.Write(customerID, MemoryUpdate{
		FlowState:        stateRef(""),
		LastIntent:       &empty,
		DataBuffer:       &empty,
		CartLines:        &[]models.CartLine{},
		LastVariantID:    int64Ref(0),
		LastQtySuggested: intRef(0),
	})
}

// Delete removes a customer's memory row entirely.
func (m *MemoryManager) Delete(customerID string) error {
	return m.store.DeleteMemory(customerID)
}

// SweepIdle deletes rows idle longer than ttl, skipping takeovers.
func (m *MemoryManager) SweepIdle(ttl time.Duration) (int, error) {
	return m.store.DeleteIdleMemories(time.Now().Add(-ttl))
}

func stateRef(s models.StateType) *models.StateType { return &s }
func strRef(s string) *string                       { return &s }
func intRef(i int) *int                             { return &i }
func int64Ref(i int64) *int64                       { return &i }
func boolRef(b bool) *bool                          { return &b }

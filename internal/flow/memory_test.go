package flow

import (
	"testing"
	"time"

	"github.com/pedidobot/pedidobot/internal/models"
	"github.com/pedidobot/pedidobot/internal/store"
)

func TestMemoryManagerWritePartialUpdate(t *testing.T) {
	mgr := NewMemoryManager(store.NewInMemoryStore())

	if err := mgr.Write("c1", MemoryUpdate{
		FlowState:  stateRef(models.StateAwaitingQuantity),
		DataBuffer: strRef(`{"cantidad":2}`),
	}); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	// A later write without DataBuffer must not touch it.
	if err := mgr.Write("c1", MemoryUpdate{LastIntent: strRef(models.IntentCreateOrder)}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	mem, err := mgr.Read("c1")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if mem.FlowState != models.StateAwaitingQuantity {
		t.Errorf("expected state preserved, got %q", mem.FlowState)
	}
	if mem.DataBuffer != `{"cantidad":2}` {
		t.Errorf("expected buffer preserved, got %q", mem.DataBuffer)
	}
	if mem.LastIntent != models.IntentCreateOrder {
		t.Errorf("expected intent updated, got %q", mem.LastIntent)
	}
}

func TestMemoryManagerResetFlowKeepsTakeover(t *testing.T) {
	mgr := NewMemoryManager(store.NewInMemoryStore())
	until := time.Now().Add(time.Hour)

	if err := mgr.Write("c1", MemoryUpdate{
		FlowState:     stateRef(models.StateAwaitingOrderConfirm),
		CartLines:     &[]models.CartLine{{ProductID: 1, Quantity: 2}},
		HumanTakeover: boolRef(true),
		TakeoverUntil: &until,
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := mgr.ResetFlow("c1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	mem, err := mgr.Read("c1")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if mem.FlowState != "" || len(mem.CartLines) != 0 {
		t.Errorf("expected flow fields cleared, got state %q cart %v", mem.FlowState, mem.CartLines)
	}
	if !mem.HumanTakeover || mem.TakeoverUntil == nil {
		t.Error("expected takeover flags preserved across flow reset")
	}
}

func TestMemoryManagerGetOrCreate(t *testing.T) {
	mgr := NewMemoryManager(store.NewInMemoryStore())

	mem, err := mgr.GetOrCreate("c1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if mem.CustomerID != "c1" || mem.FlowState != "" {
		t.Errorf("unexpected fresh memory: %+v", mem)
	}
	if mem.CreatedAt.IsZero() || mem.LastActivityAt.IsZero() {
		t.Error("expected timestamps set on creation")
	}

	again, err := mgr.GetOrCreate("c1")
	if err != nil {
		t.Fatalf("second GetOrCreate failed: %v", err)
	}
	if !again.CreatedAt.Equal(mem.CreatedAt) {
		t.Error("expected existing row returned, not a new one")
	}
}

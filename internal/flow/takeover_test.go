package flow

import (
	"context"
	"testing"
	"time"

	"github.com/pedidobot/pedidobot/internal/models"
	"github.com/pedidobot/pedidobot/internal/store"
)

func newTestSupervisor(t *testing.T, opts ...SupervisorOption) (*Supervisor, *MemoryManager, *fakeBackend, *fakeSender) {
	t.Helper()
	mgr := NewMemoryManager(store.NewInMemoryStore())
	backend := newFakeBackend()
	sender := &fakeSender{}
	return NewSupervisor(mgr, backend, sender, opts...), mgr, backend, sender
}

func TestSupervisorAgentCommands(t *testing.T) {
	sup, mgr, _, _ := newTestSupervisor(t)

	if err := sup.OnAgentMessage("c1", "/off"); err != nil {
		t.Fatalf("/off failed: %v", err)
	}
	suppress, err := sup.ShouldSuppress("c1")
	if err != nil || !suppress {
		t.Fatalf("expected suppression after /off, got %v err=%v", suppress, err)
	}
	mem, _ := mgr.Read("c1")
	if mem.TakeoverUntil != nil {
		t.Error("expected indefinite takeover with no deadline")
	}

	if err := sup.OnAgentMessage("c1", "/on"); err != nil {
		t.Fatalf("/on failed: %v", err)
	}
	suppress, err = sup.ShouldSuppress("c1")
	if err != nil || suppress {
		t.Fatalf("expected bot resumed after /on, got %v err=%v", suppress, err)
	}
}

func TestSupervisorAgentReplyCooldown(t *testing.T) {
	sup, mgr, _, _ := newTestSupervisor(t, WithAgentCooldown(30*time.Minute))

	if err := sup.OnAgentMessage("c1", "hola, te respondo yo"); err != nil {
		t.Fatalf("agent message failed: %v", err)
	}

	suppress, err := sup.ShouldSuppress("c1")
	if err != nil || !suppress {
		t.Fatalf("expected suppression during cooldown, got %v err=%v", suppress, err)
	}
	mem, _ := mgr.Read("c1")
	if mem.TakeoverUntil == nil {
		t.Fatal("expected a cooldown deadline")
	}
	if until := time.Until(*mem.TakeoverUntil); until > 30*time.Minute || until < 29*time.Minute {
		t.Errorf("unexpected cooldown deadline: %v from now", until)
	}
}

func TestSupervisorExpiredTakeoverResumes(t *testing.T) {
	sup, mgr, _, _ := newTestSupervisor(t)

	past := time.Now().Add(-time.Minute)
	if err := mgr.Write("c1", MemoryUpdate{HumanTakeover: boolRef(true), TakeoverUntil: &past}); err != nil {
		t.Fatalf("setup write failed: %v", err)
	}

	suppress, err := sup.ShouldSuppress("c1")
	if err != nil || suppress {
		t.Fatalf("expected expired takeover to resume the bot, got %v err=%v", suppress, err)
	}
	// The expired flag is cleared in passing.
	mem, _ := mgr.Read("c1")
	if mem.HumanTakeover || mem.TakeoverUntil != nil {
		t.Errorf("expected takeover flags cleared, got %+v", mem)
	}
}

func TestGateUnverifiedLead(t *testing.T) {
	ctx := context.Background()
	sup, mgr, backend, sender := newTestSupervisor(t, WithLeadPause(45*time.Minute))

	profile := &models.CustomerProfile{Phone: "c1", CustomerType: models.CustomerTypeWholesaler}
	consumed, err := sup.GateUnverifiedLead(ctx, "c1", profile)
	if err != nil || !consumed {
		t.Fatalf("expected gate to consume message for unverified lead, got %v err=%v", consumed, err)
	}
	if sender.last() != MsgLeadPaused {
		t.Errorf("expected lead paused message, got %q", sender.last())
	}
	mem, _ := mgr.Read("c1")
	if !mem.HumanTakeover || mem.TakeoverUntil == nil {
		t.Error("expected timed takeover for the paused lead")
	}

	// A customer with sales history passes straight through.
	backend.salesHistory["c2"] = true
	profile2 := &models.CustomerProfile{Phone: "c2", CustomerType: models.CustomerTypeBusiness}
	consumed, err = sup.GateUnverifiedLead(ctx, "c2", profile2)
	if err != nil || consumed {
		t.Errorf("expected verified customer to pass, got %v err=%v", consumed, err)
	}

	// Walk-in consumers are never gated.
	profile3 := &models.CustomerProfile{Phone: "c3", CustomerType: models.CustomerTypeWalkIn}
	consumed, err = sup.GateUnverifiedLead(ctx, "c3", profile3)
	if err != nil || consumed {
		t.Errorf("expected walk-in to pass, got %v err=%v", consumed, err)
	}
}

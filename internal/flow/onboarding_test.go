package flow

import (
	"context"
	"testing"

	"github.com/pedidobot/pedidobot/internal/models"
	"github.com/pedidobot/pedidobot/internal/store"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{"ana@example.com", "juan.perez@sub.dominio.ar", " con.espacios@mail.com "}
	invalid := []string{"", "sin-arroba", "a@b", "a@b.", "dos @espacios.com"}

	for _, s := range valid {
		if !IsValidEmail(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range invalid {
		if IsValidEmail(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestParseCustomerType(t *testing.T) {
	cases := []struct {
		in   string
		want models.CustomerType
		ok   bool
	}{
		{"1", models.CustomerTypeWalkIn, true},
		{"Consumidor Final", models.CustomerTypeWalkIn, true},
		{"2", models.CustomerTypeBusiness, true},
		{"EMPRESA", models.CustomerTypeBusiness, true},
		{"institución", models.CustomerTypeBusiness, true},
		{"3", models.CustomerTypeWholesaler, true},
		{"mayorista", models.CustomerTypeWholesaler, true},
		{"4", "", false},
		{"no sé", "", false},
	}
	for _, c := range cases {
		got, ok := ParseCustomerType(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseCustomerType(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestOnboardingFullFlow(t *testing.T) {
	ctx := context.Background()
	mgr := NewMemoryManager(store.NewInMemoryStore())
	backend := newFakeBackend()
	sender := &fakeSender{}
	ob := NewOnboarding(mgr, backend, sender)

	// First contact: gate consumes the message and asks for a name.
	handled, err := ob.Intercept(ctx, "549111", "hola quiero pedir")
	if err != nil || !handled {
		t.Fatalf("expected gate to consume first message, handled=%v err=%v", handled, err)
	}
	if sender.last() != MsgAskName {
		t.Fatalf("expected name prompt, got %q", sender.last())
	}

	steps := []struct {
		answer string
		prompt string
	}{
		{"Ana García", MsgAskEmail},
		{"ana@example.com", MsgAskCustomerType},
		{"2", MsgOnboardingDone},
	}
	for _, s := range steps {
		handled, err := ob.Intercept(ctx, "549111", s.answer)
		if err != nil || !handled {
			t.Fatalf("answer %q: handled=%v err=%v", s.answer, handled, err)
		}
		if sender.last() != s.prompt {
			t.Fatalf("answer %q: expected %q, got %q", s.answer, s.prompt, sender.last())
		}
	}

	profile := backend.profiles["549111"]
	if profile.Name != "Ana García" || profile.Email != "ana@example.com" || profile.CustomerType != models.CustomerTypeBusiness {
		t.Errorf("unexpected profile after onboarding: %+v", profile)
	}
	if len(backend.leads) != 1 {
		t.Errorf("expected one CRM lead for a business customer, got %d", len(backend.leads))
	}

	mem, _ := mgr.Read("549111")
	if mem.FlowState != "" {
		t.Errorf("expected onboarding state cleared, got %q", mem.FlowState)
	}

	// Complete profile: the gate lets the next message through.
	handled, err = ob.Intercept(ctx, "549111", "quiero 2 yerbas")
	if err != nil || handled {
		t.Errorf("expected passthrough after onboarding, handled=%v err=%v", handled, err)
	}
}

func TestOnboardingInvalidAnswersReprompt(t *testing.T) {
	ctx := context.Background()
	mgr := NewMemoryManager(store.NewInMemoryStore())
	backend := newFakeBackend()
	sender := &fakeSender{}
	ob := NewOnboarding(mgr, backend, sender)

	if _, err := ob.Intercept(ctx, "549111", "hola"); err != nil {
		t.Fatalf("intercept failed: %v", err)
	}
	if _, err := ob.Intercept(ctx, "549111", "Ana"); err != nil {
		t.Fatalf("name answer failed: %v", err)
	}

	// Invalid email re-prompts without advancing.
	if _, err := ob.Intercept(ctx, "549111", "esto no es un mail"); err != nil {
		t.Fatalf("invalid email failed: %v", err)
	}
	if sender.last() != MsgInvalidEmail {
		t.Fatalf("expected invalid email message, got %q", sender.last())
	}
	mem, _ := mgr.Read("549111")
	if mem.FlowState != models.StateAwaitingEmail {
		t.Errorf("expected to stay in email state, got %q", mem.FlowState)
	}

	if _, err := ob.Intercept(ctx, "549111", "ana@example.com"); err != nil {
		t.Fatalf("email answer failed: %v", err)
	}

	// Invalid type option re-prompts too.
	if _, err := ob.Intercept(ctx, "549111", "9"); err != nil {
		t.Fatalf("invalid type failed: %v", err)
	}
	if sender.last() != MsgInvalidCustomerType {
		t.Fatalf("expected invalid type message, got %q", sender.last())
	}
}

func TestOnboardingWalkInSkipsLead(t *testing.T) {
	ctx := context.Background()
	mgr := NewMemoryManager(store.NewInMemoryStore())
	backend := newFakeBackend()
	sender := &fakeSender{}
	ob := NewOnboarding(mgr, backend, sender)

	for _, answer := range []string{"hola", "Juan", "juan@example.com", "1"} {
		if _, err := ob.Intercept(ctx, "549222", answer); err != nil {
			t.Fatalf("answer %q failed: %v", answer, err)
		}
	}
	if len(backend.leads) != 0 {
		t.Errorf("expected no CRM lead for a walk-in consumer, got %d", len(backend.leads))
	}
}

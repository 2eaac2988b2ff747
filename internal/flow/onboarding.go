package flow

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pedidobot/pedidobot/internal/erp"
	"github.com/pedidobot/pedidobot/internal/models"
)

var emailPattern = regexp.MustCompile(`^[\w.\-]+@[\w.\-]+\.\w+$`)

// IsValidEmail reports whether s looks like an email address.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// ParseCustomerType maps a customer reply to a customer type. Accepts the
// menu number or the type name, case-insensitively.
func ParseCustomerType(text string) (models.CustomerType, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "1", "consumidor final", "consumidor":
		return models.CustomerTypeWalkIn, true
	case "2", "empresa", "institucion", "institución", "empresa / institución", "empresa / institucion":
		return models.CustomerTypeBusiness, true
	case "3", "mayorista":
		return models.CustomerTypeWholesaler, true
	}
	return "", false
}

// Onboarding gates every flow behind a complete customer profile. It asks
// for name, email and customer type in that strict order, re-checking the
// full requirement set after each answer in case data was completed out of
// band.
type Onboarding struct {
	mem       *MemoryManager
	customers erp.CustomerService
	sender    Sender
}

// NewOnboarding creates the onboarding gate.
func NewOnboarding(mem *MemoryManager, customers erp.CustomerService, sender Sender) *Onboarding {
	return &Onboarding{mem: mem, customers: customers, sender: sender}
}

// Intercept runs the onboarding gate for one inbound message. It returns
// true when it consumed the message (the customer is mid-onboarding or
// onboarding just started) and false when the profile is complete and the
// message should flow on to the engine.
func (o *Onboarding) Intercept(ctx context.Context, customerID, text string) (bool, error) {
	mem, err := o.mem.GetOrCreate(customerID)
	if err != nil {
		return false, err
	}

	if models.IsOnboardingState(mem.FlowState) {
		return true, o.processAnswer(ctx, customerID, mem.FlowState, text)
	}

	profile, err := o.customers.GetProfile(ctx, customerID)
	if err != nil {
		return false, err
	}
	if profile.Complete() {
		return false, nil
	}

	slog.Info("Onboarding.Intercept: starting onboarding", "customerID", customerID)
	return true, o.askNextMissing(ctx, customerID, profile)
}

// askNextMissing prompts for the first missing profile field, in the fixed
// name, email, customer type order.
func (o *Onboarding) askNextMissing(ctx context.Context, customerID string, profile *models.CustomerProfile) error {
	switch {
	case profile.Name == "":
		if err := o.mem.Write(customerID, MemoryUpdate{FlowState: stateRef(models.StateAwaitingName)}); err != nil {
			return err
		}
		return o.sender.SendMessage(ctx, customerID, MsgAskName)
	case profile.Email == "":
		if err := o.mem.Write(customerID, MemoryUpdate{FlowState: stateRef(models.StateAwaitingEmail)}); err != nil {
			return err
		}
		return o.sender.SendMessage(ctx, customerID, MsgAskEmail)
	default:
		if err := o.mem.Write(customerID, MemoryUpdate{FlowState: stateRef(models.StateAwaitingCustomerType)}); err != nil {
			return err
		}
		return o.sender.SendMessage(ctx, customerID, MsgAskCustomerType)
	}
}

// processAnswer validates the answer for the current onboarding state.
// Invalid input re-prompts without advancing.
func (o *Onboarding) processAnswer(ctx context.Context, customerID string, state models.StateType, text string) error {
	switch state {
	case models.StateAwaitingName:
		name := strings.TrimSpace(text)
		if name == "" {
			return o.sender.SendMessage(ctx, customerID, MsgAskName)
		}
		if err := o.customers.UpdateProfile(ctx, customerID, erp.ProfileUpdate{Name: &name}); err != nil {
			slog.Error("Onboarding.processAnswer: name update failed", "error", err, "customerID", customerID)
			return o.sender.SendMessage(ctx, customerID, MsgFallback)
		}

	case models.StateAwaitingEmail:
		email := strings.TrimSpace(text)
		if !IsValidEmail(email) {
			return o.sender.SendMessage(ctx, customerID, MsgInvalidEmail)
		}
		if err := o.customers.UpdateProfile(ctx, customerID, erp.ProfileUpdate{Email: &email}); err != nil {
			slog.Error("Onboarding.processAnswer: email update failed", "error", err, "customerID", customerID)
			return o.sender.SendMessage(ctx, customerID, MsgFallback)
		}

	case models.StateAwaitingCustomerType:
		ctype, ok := ParseCustomerType(text)
		if !ok {
			return o.sender.SendMessage(ctx, customerID, MsgInvalidCustomerType)
		}
		if err := o.customers.UpdateProfile(ctx, customerID, erp.ProfileUpdate{CustomerType: &ctype}); err != nil {
			slog.Error("Onboarding.processAnswer: type update failed", "error", err, "customerID", customerID)
			return o.sender.SendMessage(ctx, customerID, MsgFallback)
		}

	default:
		return o.mem.Write(customerID, MemoryUpdate{FlowState: stateRef("")})
	}

	// Re-check the full requirement set before declaring the gate passed.
	profile, err := o.customers.GetProfile(ctx, customerID)
	if err != nil {
		return err
	}
	if !profile.Complete() {
		return o.askNextMissing(ctx, customerID, profile)
	}

	if err := o.mem.Write(customerID, MemoryUpdate{FlowState: stateRef("")}); err != nil {
		return err
	}

	// Non-walk-in customers get a CRM lead for the sales team. A failure
	// here is logged but never blocks the conversation.
	if profile.CustomerType != models.CustomerTypeWalkIn {
		if err := o.customers.CreateLead(ctx, customerID, "Nuevo cliente registrado por WhatsApp: "+profile.Name); err != nil {
			slog.Error("Onboarding.processAnswer: lead creation failed", "error", err, "customerID", customerID)
		}
	}

	return o.sender.SendMessage(ctx, customerID, MsgOnboardingDone)
}

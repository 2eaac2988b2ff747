package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pedidobot/pedidobot/internal/erp"
	"github.com/pedidobot/pedidobot/internal/models"
)

// Default supervisor timings.
const (
	// DefaultAgentCooldown is how long the bot stays silent after a human
	// agent replies to a customer.
	DefaultAgentCooldown = time.Hour
	// DefaultLeadPause is how long the bot pauses an unverified lead
	// while the sales team follows up.
	DefaultLeadPause = time.Hour
)

// Agent-side commands that toggle the bot for one customer.
const (
	CommandBotOff = "/off"
	CommandBotOn  = "/on"
)

// SupervisorOpts holds configuration options for the takeover supervisor.
type SupervisorOpts struct {
	AgentCooldown time.Duration
	LeadPause     time.Duration
}

// SupervisorOption defines a configuration option for the supervisor.
type SupervisorOption func(*SupervisorOpts)

// WithAgentCooldown overrides the pause applied after an agent reply.
func WithAgentCooldown(d time.Duration) SupervisorOption {
	return func(o *SupervisorOpts) { o.AgentCooldown = d }
}

// WithLeadPause overrides the pause applied to unverified leads.
func WithLeadPause(d time.Duration) SupervisorOption {
	return func(o *SupervisorOpts) { o.LeadPause = d }
}

// Supervisor implements the human-takeover guard. It sits in front of the
// dialogue engine: when a takeover is active the bot stays completely
// silent for that customer, regardless of conversation state.
type Supervisor struct {
	mem           *MemoryManager
	customers     erp.CustomerService
	sender        Sender
	agentCooldown time.Duration
	leadPause     time.Duration
}

// NewSupervisor creates the takeover supervisor.
func NewSupervisor(mem *MemoryManager, customers erp.CustomerService, sender Sender, opts ...SupervisorOption) *Supervisor {
	cfg := SupervisorOpts{AgentCooldown: DefaultAgentCooldown, LeadPause: DefaultLeadPause}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Supervisor{
		mem:           mem,
		customers:     customers,
		sender:        sender,
		agentCooldown: cfg.AgentCooldown,
		leadPause:     cfg.LeadPause,
	}
}

// ShouldSuppress reports whether the bot must stay silent for this
// customer right now. An expired timed takeover is cleared on the way
// through, so the conversation resumes with this very message.
func (s *Supervisor) ShouldSuppress(customerID string) (bool, error) {
	mem, err := s.mem.Read(customerID)
	if err != nil {
		return false, err
	}
	if mem == nil || !mem.HumanTakeover {
		return false, nil
	}
	if mem.TakeoverUntil != nil && !time.Now().Before(*mem.TakeoverUntil) {
		slog.Info("Supervisor.ShouldSuppress: takeover expired, resuming bot", "customerID", customerID)
		err := s.mem.Write(customerID, MemoryUpdate{
			HumanTakeover:      boolRef(false),
			ClearTakeoverUntil: true,
		})
		return false, err
	}
	return true, nil
}

// OnAgentMessage processes a message sent by a human agent to a customer.
// The commands /off and /on suspend and resume the bot indefinitely; any
// other agent message applies the reply cooldown so the bot does not talk
// over the agent.
func (s *Supervisor) OnAgentMessage(customerID, body string) error {
	switch strings.TrimSpace(strings.ToLower(body)) {
	case CommandBotOff:
		slog.Info("Supervisor.OnAgentMessage: bot suspended indefinitely", "customerID", customerID)
		return s.mem.Write(customerID, MemoryUpdate{
			HumanTakeover:      boolRef(true),
			ClearTakeoverUntil: true,
		})
	case CommandBotOn:
		slog.Info("Supervisor.OnAgentMessage: bot resumed", "customerID", customerID)
		return s.mem.Write(customerID, MemoryUpdate{
			HumanTakeover:      boolRef(false),
			ClearTakeoverUntil: true,
		})
	default:
		until := time.Now().Add(s.agentCooldown)
		slog.Info("Supervisor.OnAgentMessage: agent reply cooldown applied", "customerID", customerID, "until", until)
		return s.mem.Write(customerID, MemoryUpdate{
			HumanTakeover: boolRef(true),
			TakeoverUntil: &until,
		})
	}
}

// GateUnverifiedLead pauses customers who claim a business or wholesale
// type but have no sales history yet: they are greeted once and handed to
// the sales team instead of the bot. Returns true when the message was
// consumed by the gate.
func (s *Supervisor) GateUnverifiedLead(ctx context.Context, customerID string, profile *models.CustomerProfile) (bool, error) {
	if profile.CustomerType == "" || profile.CustomerType == models.CustomerTypeWalkIn {
		return false, nil
	}
	verified, err := s.customers.HasSalesHistory(ctx, customerID)
	if err != nil {
		return false, err
	}
	if verified {
		return false, nil
	}

	until := time.Now().Add(s.leadPause)
	slog.Info("Supervisor.GateUnverifiedLead: pausing unverified lead", "customerID", customerID, "until", until)
	if err := s.mem.Write(customerID, MemoryUpdate{
		HumanTakeover: boolRef(true),
		TakeoverUntil: &until,
	}); err != nil {
		return false, err
	}
	return true, s.sender.SendMessage(ctx, customerID, MsgLeadPaused)
}

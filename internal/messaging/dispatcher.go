package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pedidobot/pedidobot/internal/erp"
	"github.com/pedidobot/pedidobot/internal/flow"
)

// Dispatcher consumes inbound messages from the transport and routes each
// one through the conversation layers in fixed precedence order:
//
//  1. the human-takeover guard (the bot stays silent),
//  2. the onboarding gate (incomplete profiles answer onboarding questions),
//  3. the unverified-lead gate (new business customers wait for sales),
//  4. the walk-in fast path (consumers are pointed at the web store),
//  5. the dialogue engine.
//
// Messages from different customers are processed concurrently; messages
// from the same customer are strictly serialized.
type Dispatcher struct {
	service    Service
	engine     *flow.Engine
	onboarding *flow.Onboarding
	supervisor *flow.Supervisor
	customers  erp.CustomerService

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	wg    sync.WaitGroup
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(service Service, engine *flow.Engine, onboarding *flow.Onboarding, supervisor *flow.Supervisor, customers erp.CustomerService) *Dispatcher {
	return &Dispatcher{
		service:    service,
		engine:     engine,
		onboarding: onboarding,
		supervisor: supervisor,
		customers:  customers,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Run consumes the transport's response and receipt channels until the
// context is cancelled or the channels close. It blocks; run it in a
// goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher.Run: starting")
	receipts := d.service.Receipts()
	responses := d.service.Responses()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher.Run: context cancelled, draining")
			d.wg.Wait()
			return
		case receipt, ok := <-receipts:
			if !ok {
				receipts = nil
				continue
			}
			slog.Debug("Dispatcher.Run: receipt", "to", receipt.To, "status", receipt.Status)
		case resp, ok := <-responses:
			if !ok {
				slog.Info("Dispatcher.Run: responses channel closed, draining")
				d.wg.Wait()
				return
			}
			customerID, err := d.service.ValidateAndCanonicalizeRecipient(resp.From)
			if err != nil {
				slog.Warn("Dispatcher.Run: dropping message with invalid sender", "from", resp.From, "error", err)
				continue
			}
			d.wg.Add(1)
			go func(customerID, body string) {
				defer d.wg.Done()
				lock := d.lockFor(customerID)
				lock.Lock()
				defer lock.Unlock()
				d.dispatch(ctx, customerID, body)
			}(customerID, resp.Body)
		}
	}
}

// HandleAgentMessage processes a message sent by a human agent to a
// customer, applying the takeover commands and the reply cooldown. It runs
// under the same per-customer lock as inbound dispatch.
func (d *Dispatcher) HandleAgentMessage(customerID, body string) error {
	canonical, err := d.service.ValidateAndCanonicalizeRecipient(customerID)
	if err != nil {
		return err
	}
	lock := d.lockFor(canonical)
	lock.Lock()
	defer lock.Unlock()
	return d.supervisor.OnAgentMessage(canonical, body)
}

// dispatch routes one inbound customer message through the layers. A
// collaborator failure before the engine still answers with the fallback
// text; only a takeover suppresses the reply entirely.
func (d *Dispatcher) dispatch(ctx context.Context, customerID, body string) {
	suppress, err := d.supervisor.ShouldSuppress(customerID)
	if err != nil {
		slog.Error("Dispatcher.dispatch: takeover check failed", "error", err, "customerID", customerID)
		d.sendFallback(ctx, customerID)
		return
	}
	if suppress {
		slog.Info("Dispatcher.dispatch: suppressed by takeover", "customerID", customerID)
		return
	}

	handled, err := d.onboarding.Intercept(ctx, customerID, body)
	if err != nil {
		slog.Error("Dispatcher.dispatch: onboarding failed", "error", err, "customerID", customerID)
		d.sendFallback(ctx, customerID)
		return
	}
	if handled {
		return
	}

	profile, err := d.customers.GetProfile(ctx, customerID)
	if err != nil {
		slog.Error("Dispatcher.dispatch: profile load failed", "error", err, "customerID", customerID)
		d.sendFallback(ctx, customerID)
		return
	}

	consumed, err := d.supervisor.GateUnverifiedLead(ctx, customerID, profile)
	if err != nil {
		slog.Error("Dispatcher.dispatch: lead gate failed", "error", err, "customerID", customerID)
		d.sendFallback(ctx, customerID)
		return
	}
	if consumed {
		return
	}

	handled, err = d.engine.HandleWalkIn(ctx, customerID, profile, body)
	if err != nil {
		slog.Error("Dispatcher.dispatch: walk-in fast path failed", "error", err, "customerID", customerID)
		return
	}
	if handled {
		return
	}

	if err := d.engine.HandleMessage(ctx, customerID, body); err != nil {
		slog.Error("Dispatcher.dispatch: engine failed", "error", err, "customerID", customerID)
	}
}

// sendFallback answers an inbound message whose processing failed before
// reaching a layer that replies on its own.
func (d *Dispatcher) sendFallback(ctx context.Context, customerID string) {
	if err := d.service.SendMessage(ctx, customerID, flow.MsgFallback); err != nil {
		slog.Error("Dispatcher.sendFallback: send failed", "error", err, "customerID", customerID)
	}
}

// lockFor returns the mutex serializing one customer's messages.
func (d *Dispatcher) lockFor(customerID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[customerID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[customerID] = lock
	}
	return lock
}

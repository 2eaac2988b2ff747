package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/pedidobot/pedidobot/internal/erp"
	"github.com/pedidobot/pedidobot/internal/genai"
	"github.com/pedidobot/pedidobot/internal/models"
)

// RecentInvoiceLimit is how many invoices the retrieval flow offers.
const RecentInvoiceLimit = 5

// Sender is the outbound messaging surface the flow package needs. It is a
// subset of messaging.Service so flows can be tested with a fake.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendTemplate(ctx context.Context, to string, template string, vars map[string]string) error
}

// EngineOpts holds configuration options for the dialogue engine.
type EngineOpts struct {
	// WebStoreURLs maps customer types to the web store address used in
	// redirect messages. DefaultWebStoreURL covers missing entries.
	WebStoreURLs       map[models.CustomerType]string
	DefaultWebStoreURL string
}

// EngineOption defines a configuration option for the dialogue engine.
type EngineOption func(*EngineOpts)

// WithWebStoreURL sets the web store address for one customer type.
func WithWebStoreURL(ctype models.CustomerType, url string) EngineOption {
	return func(o *EngineOpts) {
		if o.WebStoreURLs == nil {
			o.WebStoreURLs = make(map[models.CustomerType]string)
		}
		o.WebStoreURLs[ctype] = url
	}
}

// WithDefaultWebStoreURL sets the fallback web store address.
func WithDefaultWebStoreURL(url string) EngineOption {
	return func(o *EngineOpts) { o.DefaultWebStoreURL = url }
}

// handlerFunc processes one inbound message for the state that owns it.
type handlerFunc func(ctx context.Context, customerID string, mem *models.ConversationMemory, text string) error

// Engine is the ordering dialogue state machine. Handlers are registered
// in a static dispatch table keyed by state; an unknown stored state is
// cleared and the message re-routed by intent.
type Engine struct {
	mem       *MemoryManager
	ai        genai.ClientInterface
	catalog   erp.CatalogService
	orders    erp.OrderService
	invoices  erp.InvoiceService
	customers erp.CustomerService
	sender    Sender

	handlers map[models.StateType]handlerFunc
	opts     EngineOpts
}

// NewEngine wires the dialogue engine and builds its dispatch table.
func NewEngine(mem *MemoryManager, ai genai.ClientInterface, backend erp.Backend, sender Sender, opts ...EngineOption) *Engine {
	cfg := EngineOpts{DefaultWebStoreURL: "https://tienda.example.com"}
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &Engine{
		mem:       mem,
		ai:        ai,
		catalog:   backend,
		orders:    backend,
		invoices:  backend,
		customers: backend,
		sender:    sender,
		opts:      cfg,
	}
	e.handlers = map[models.StateType]handlerFunc{
		models.StateAwaitingProductSelection: e.handleProductSelection,
		models.StateAwaitingQuantity:         e.handleQuantity,
		models.StateAwaitingStockConfirm:     e.handleStockConfirm,
		models.StateAwaitingOrderConfirm:     e.handleOrderConfirm,
		models.StateAwaitingRemoveSelection:  e.handleRemoveSelection,
		models.StateAwaitingAddressSelection: e.handleAddressSelection,
		models.StateAwaitingInvoiceChoice:    e.handleInvoiceChoice,
		models.StateAwaitingInvoiceNumber:    e.handleInvoiceNumber,
	}
	return e
}

// HandleMessage processes one inbound customer message. Collaborator
// failures never escape: the customer always gets either a flow reply or
// the fallback message, and memory is always left in a defined state.
func (e *Engine) HandleMessage(ctx context.Context, customerID, text string) error {
	mem, err := e.mem.GetOrCreate(customerID)
	if err != nil {
		slog.Error("Engine.HandleMessage: memory load failed", "error", err, "customerID", customerID)
		return e.sendFallback(ctx, customerID, err)
	}

	if mem.FlowState != "" && !models.IsOnboardingState(mem.FlowState) {
		if handler, ok := e.handlers[mem.FlowState]; ok {
			return handler(ctx, customerID, mem, text)
		}
		slog.Warn("Engine.HandleMessage: unknown state in memory, clearing", "customerID", customerID, "state", mem.FlowState)
		if err := e.clearState(customerID); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
	}

	return e.routeIntent(ctx, customerID, text)
}

// routeIntent classifies a message with no active flow and dispatches it.
func (e *Engine) routeIntent(ctx context.Context, customerID, text string) error {
	intent := e.ai.Classify(ctx, PromptIntentClassifier, text)
	switch intent {
	case models.IntentCreateOrder, models.IntentModifyOrder, models.IntentProductQuery,
		models.IntentRequestInvoice, models.IntentGreeting, models.IntentClosing:
	default:
		intent = models.IntentOther
	}
	if err := e.mem.Write(customerID, MemoryUpdate{LastIntent: &intent}); err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	slog.Info("Engine.routeIntent: intent classified", "customerID", customerID, "intent", intent)

	switch intent {
	case models.IntentCreateOrder:
		return e.handleCreateOrder(ctx, customerID, text)
	case models.IntentModifyOrder:
		return e.showCartForEditing(ctx, customerID)
	case models.IntentProductQuery:
		return e.handleProductQuery(ctx, customerID, text)
	case models.IntentRequestInvoice:
		return e.handleInvoiceRequest(ctx, customerID, text)
	case models.IntentGreeting:
		return e.sendGenerated(ctx, customerID, PromptGreeting, text, MsgGreetingFallback)
	case models.IntentClosing:
		return e.sendGenerated(ctx, customerID, PromptClosing, text, MsgClosingFallback)
	default:
		return e.sendGenerated(ctx, customerID, PromptFAQ, text, MsgFAQFallback)
	}
}

// HandleWalkIn is the lightweight fast path for walk-in consumers with no
// active flow: they never enter the ordering state machine and are pointed
// at the web store instead. Returns false when the message should go
// through the regular engine.
func (e *Engine) HandleWalkIn(ctx context.Context, customerID string, profile *models.CustomerProfile, text string) (bool, error) {
	if profile.CustomerType != models.CustomerTypeWalkIn {
		return false, nil
	}
	mem, err := e.mem.GetOrCreate(customerID)
	if err != nil {
		return true, e.sendFallback(ctx, customerID, err)
	}
	if mem.FlowState != "" {
		return false, nil
	}

	intent := e.ai.Classify(ctx, PromptIntentClassifier, text)
	slog.Info("Engine.HandleWalkIn: fast path intent", "customerID", customerID, "intent", intent)

	switch intent {
	case models.IntentCreateOrder, models.IntentModifyOrder:
		return true, e.sender.SendMessage(ctx, customerID,
			fmt.Sprintf(MsgWebStoreRedirectFmt, e.webStoreURL(profile.CustomerType)))
	case models.IntentProductQuery:
		return true, e.answerProductForWalkIn(ctx, customerID, profile, text)
	case models.IntentRequestInvoice:
		return true, e.sender.SendMessage(ctx, customerID, MsgB2CInvoice)
	case models.IntentGreeting:
		return true, e.sendGenerated(ctx, customerID, PromptGreeting, text, MsgGreetingFallback)
	case models.IntentClosing:
		return true, e.sendGenerated(ctx, customerID, PromptClosing, text, MsgClosingFallback)
	default:
		return true, e.sendGenerated(ctx, customerID, PromptFAQ, text, MsgFAQFallback)
	}
}

// answerProductForWalkIn answers a product query with catalog data and the
// web store address, without starting an ordering flow.
func (e *Engine) answerProductForWalkIn(ctx context.Context, customerID string, profile *models.CustomerProfile, text string) error {
	variants, err := e.catalog.FindVariants(ctx, customerID, text)
	if err != nil {
		return e.sendCatalogError(ctx, customerID, err)
	}
	var sb strings.Builder
	for _, v := range variants {
		fmt.Fprintf(&sb, "- %s: $%.2f\n", v.DisplayName, v.UnitPrice)
	}
	prompt := fmt.Sprintf(PromptProductInfoFmt, sb.String(), e.webStoreURL(profile.CustomerType))
	return e.sendGenerated(ctx, customerID, prompt, text, MsgProductInfoFallback)
}

func (e *Engine) webStoreURL(ctype models.CustomerType) string {
	if url, ok := e.opts.WebStoreURLs[ctype]; ok {
		return url
	}
	return e.opts.DefaultWebStoreURL
}

// handleCreateOrder extracts product mentions and starts the queue.
func (e *Engine) handleCreateOrder(ctx context.Context, customerID, text string) error {
	products, err := e.ai.ExtractProducts(ctx, text)
	if err != nil {
		slog.Error("Engine.handleCreateOrder: extraction failed", "error", err, "customerID", customerID)
		products = nil
	}
	if len(products) == 0 {
		return e.sendGenerated(ctx, customerID, PromptWhatToOrder, text, MsgWhatToOrder)
	}
	return e.processQueue(ctx, customerID, products)
}

// processQueue resolves queued product mentions one at a time. It stops as
// soon as a mention needs customer input (selection, quantity, stock
// confirmation) and asks for order confirmation once the queue drains.
func (e *Engine) processQueue(ctx context.Context, customerID string, pending []genai.ProductQuery) error {
	for len(pending) > 0 {
		q := pending[0]
		pending = pending[1:]

		variants, err := e.catalog.FindVariants(ctx, customerID, q.Query)
		if err != nil {
			var ce *erp.CatalogError
			if errors.As(err, &ce) {
				if sendErr := e.sender.SendMessage(ctx, customerID, ce.UserMessage); sendErr != nil {
					return sendErr
				}
				continue
			}
			slog.Error("Engine.processQueue: catalog failure", "error", err, "customerID", customerID, "query", q.Query)
			if clearErr := e.clearState(customerID); clearErr != nil {
				slog.Error("Engine.processQueue: state clear failed", "error", clearErr, "customerID", customerID)
			}
			return e.sendFallback(ctx, customerID, err)
		}

		if len(variants) == 1 {
			return e.advanceWithVariant(ctx, customerID, variants[0], q.Quantity, pending)
		}

		// Several matches: offer a numbered list and wait.
		buf := SelectionBuffer{Candidates: variants, Quantity: q.Quantity, Pending: pending}
		if err := e.mem.Write(customerID, MemoryUpdate{
			FlowState:  stateRef(models.StateAwaitingProductSelection),
			DataBuffer: strRef(EncodeBuffer(buf)),
		}); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.sender.SendMessage(ctx, customerID,
			fmt.Sprintf(MsgChooseVariantFmt, renderVariantList(variants)))
	}

	return e.askOrderConfirmation(ctx, customerID)
}

// advanceWithVariant moves one resolved variant toward the cart: ask for a
// quantity, confirm a stock shortage, or add it and continue the queue.
func (e *Engine) advanceWithVariant(ctx context.Context, customerID string, v models.CatalogVariant, qty int, pending []genai.ProductQuery) error {
	if qty <= 0 {
		buf := SelectionBuffer{Selected: &v, Pending: pending}
		if err := e.mem.Write(customerID, MemoryUpdate{
			FlowState:     stateRef(models.StateAwaitingQuantity),
			DataBuffer:    strRef(EncodeBuffer(buf)),
			LastVariantID: int64Ref(v.ID),
		}); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.sender.SendMessage(ctx, customerID, fmt.Sprintf(MsgAskQuantityFmt, v.DisplayName))
	}

	if qty > v.AvailableQty {
		if v.AvailableQty <= 0 {
			if err := e.sender.SendMessage(ctx, customerID,
				fmt.Sprintf("Por el momento no tenemos stock de %s.", v.DisplayName)); err != nil {
				return err
			}
			return e.processQueue(ctx, customerID, pending)
		}
		buf := SelectionBuffer{Selected: &v, Pending: pending}
		if err := e.mem.Write(customerID, MemoryUpdate{
			FlowState:        stateRef(models.StateAwaitingStockConfirm),
			DataBuffer:       strRef(EncodeBuffer(buf)),
			LastVariantID:    int64Ref(v.ID),
			LastQtySuggested: intRef(v.AvailableQty),
		}); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.sender.SendMessage(ctx, customerID,
			fmt.Sprintf(MsgStockShortFmt, v.DisplayName, v.AvailableQty))
	}

	return e.addToCartAndContinue(ctx, customerID, v, qty, pending)
}

// addToCartAndContinue merges the line into the cart and resumes the queue.
func (e *Engine) addToCartAndContinue(ctx context.Context, customerID string, v models.CatalogVariant, qty int, pending []genai.ProductQuery) error {
	mem, err := e.mem.GetOrCreate(customerID)
	if err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	cart := AddItem(mem.CartLines, v.ID, qty)
	if err := e.mem.Write(customerID, MemoryUpdate{
		CartLines:  &cart,
		FlowState:  stateRef(""),
		DataBuffer: strRef(""),
	}); err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	if err := e.sender.SendMessage(ctx, customerID, fmt.Sprintf(MsgItemAddedFmt, qty, v.DisplayName)); err != nil {
		return err
	}
	return e.processQueue(ctx, customerID, pending)
}

// askOrderConfirmation shows the cart and asks for confirmation.
func (e *Engine) askOrderConfirmation(ctx context.Context, customerID string) error {
	mem, err := e.mem.GetOrCreate(customerID)
	if err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	if len(mem.CartLines) == 0 {
		if err := e.clearState(customerID); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.sender.SendMessage(ctx, customerID, MsgEmptyCart)
	}
	if err := e.mem.Write(customerID, MemoryUpdate{
		FlowState:  stateRef(models.StateAwaitingOrderConfirm),
		DataBuffer: strRef(""),
	}); err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	summary := RenderCartSummary(ctx, mem.CartLines, e.namer(customerID))
	return e.sender.SendMessage(ctx, customerID, summary+"\n\n"+MsgConfirmOrder)
}

// handleProductSelection resolves the customer's answer to a variant list.
func (e *Engine) handleProductSelection(ctx context.Context, customerID string, mem *models.ConversationMemory, text string) error {
	buf := DecodeBuffer[SelectionBuffer](mem.DataBuffer)
	if len(buf.Candidates) == 0 {
		if err := e.clearState(customerID); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.routeIntent(ctx, customerID, text)
	}

	idx := parseIndex(text, len(buf.Candidates))
	if idx == 0 {
		sub := e.ai.Classify(ctx, PromptSelectionClassifier, text)
		switch sub {
		case models.SubIntentNewQuery:
			// Answered in place: the candidate list and the pending queue
			// survive the follow-up question.
			var sb strings.Builder
			for _, v := range buf.Candidates {
				fmt.Fprintf(&sb, "- %s ($%.2f)\n", v.DisplayName, v.UnitPrice)
			}
			prompt := fmt.Sprintf(PromptProductComparisonFmt, strings.TrimRight(sb.String(), "\n"))
			return e.sendGenerated(ctx, customerID, prompt, text, MsgFallback)
		case models.SubIntentCancelSelection:
			if err := e.clearState(customerID); err != nil {
				return e.sendFallback(ctx, customerID, err)
			}
			return e.sender.SendMessage(ctx, customerID, MsgSelectionCancelled)
		default:
			options := make([]string, len(buf.Candidates))
			for i, v := range buf.Candidates {
				options[i] = v.DisplayName
			}
			aiIdx, err := e.ai.DisambiguateIndex(ctx, options, text)
			if err != nil {
				slog.Debug("Engine.handleProductSelection: disambiguation failed", "error", err, "customerID", customerID)
				return e.sender.SendMessage(ctx, customerID, MsgChooseVariantRetry)
			}
			idx = aiIdx
		}
	}

	return e.advanceWithVariant(ctx, customerID, buf.Candidates[idx-1], buf.Quantity, buf.Pending)
}

// handleQuantity interprets the answer to "how many units?".
func (e *Engine) handleQuantity(ctx context.Context, customerID string, mem *models.ConversationMemory, text string) error {
	buf := DecodeBuffer[SelectionBuffer](mem.DataBuffer)
	if buf.Selected == nil {
		if err := e.clearState(customerID); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.routeIntent(ctx, customerID, text)
	}

	qty := parseQuantity(text)
	if qty == 0 {
		aiQty, err := e.ai.ExtractQuantity(ctx, text)
		if err != nil {
			slog.Debug("Engine.handleQuantity: extraction failed", "error", err, "customerID", customerID)
			return e.sender.SendMessage(ctx, customerID, MsgInvalidQuantity)
		}
		qty = aiQty
	}
	if qty <= 0 {
		return e.sender.SendMessage(ctx, customerID, MsgInvalidQuantity)
	}

	return e.advanceWithVariant(ctx, customerID, *buf.Selected, qty, buf.Pending)
}

// handleStockConfirm interprets the answer to a stock shortage offer.
func (e *Engine) handleStockConfirm(ctx context.Context, customerID string, mem *models.ConversationMemory, text string) error {
	buf := DecodeBuffer[SelectionBuffer](mem.DataBuffer)
	if buf.Selected == nil {
		if err := e.clearState(customerID); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.routeIntent(ctx, customerID, text)
	}

	accepted, known := parseYesNo(text)
	if !known {
		switch e.ai.Classify(ctx, PromptYesNoClassifier, text) {
		case "si":
			accepted, known = true, true
		case "no":
			accepted, known = false, true
		}
	}
	if !known {
		// The classifier sentinel is not a decline.
		return e.sender.SendMessage(ctx, customerID, MsgInvalidStockConfirm)
	}

	if accepted {
		return e.addToCartAndContinue(ctx, customerID, *buf.Selected, mem.LastQtySuggested, buf.Pending)
	}

	if err := e.clearState(customerID); err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	if err := e.sender.SendMessage(ctx, customerID,
		fmt.Sprintf(MsgProductSkippedFmt, buf.Selected.DisplayName)); err != nil {
		return err
	}
	return e.processQueue(ctx, customerID, buf.Pending)
}

// handleOrderConfirm re-classifies the reply to the confirmation question.
func (e *Engine) handleOrderConfirm(ctx context.Context, customerID string, mem *models.ConversationMemory, text string) error {
	label := e.ai.Classify(ctx, PromptConfirmClassifier, text)
	if yes, known := parseYesNo(text); known && yes {
		label = models.ConfirmFinalize
	}

	switch label {
	case models.ConfirmFinalize:
		return e.startOrderFinalization(ctx, customerID)
	case models.ConfirmModify:
		return e.showCartForEditing(ctx, customerID)
	default:
		// The customer kept talking instead of answering. The message is
		// routed fresh; the cart stays so they can keep shopping.
		if err := e.clearState(customerID); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.routeIntent(ctx, customerID, text)
	}
}

// startOrderFinalization branches on delivery addresses before creating
// the order: more than one registered address means the customer chooses.
func (e *Engine) startOrderFinalization(ctx context.Context, customerID string) error {
	addrs, err := e.customers.ListDeliveryAddresses(ctx, customerID)
	if err != nil {
		slog.Error("Engine.startOrderFinalization: address lookup failed", "error", err, "customerID", customerID)
		addrs = nil
	}

	if len(addrs) > 1 {
		buf := AddressBuffer{Addresses: addrs}
		if err := e.mem.Write(customerID, MemoryUpdate{
			FlowState:  stateRef(models.StateAwaitingAddressSelection),
			DataBuffer: strRef(EncodeBuffer(buf)),
		}); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		var sb strings.Builder
		for i, a := range addrs {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, a.Label)
		}
		return e.sender.SendMessage(ctx, customerID,
			fmt.Sprintf(MsgChooseAddressFmt, strings.TrimRight(sb.String(), "\n")))
	}

	var addressID int64
	if len(addrs) == 1 {
		addressID = addrs[0].ID
	}
	return e.finalizeOrder(ctx, customerID, addressID)
}

// finalizeOrder creates the sale order and resets the flow on success.
func (e *Engine) finalizeOrder(ctx context.Context, customerID string, addressID int64) error {
	mem, err := e.mem.GetOrCreate(customerID)
	if err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	if len(mem.CartLines) == 0 {
		if err := e.clearState(customerID); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.sender.SendMessage(ctx, customerID, MsgEmptyCart)
	}

	order, err := e.orders.CreateOrder(ctx, customerID, mem.CartLines, addressID)
	if err != nil {
		slog.Error("Engine.finalizeOrder: order creation failed", "error", err, "customerID", customerID)
		var ce *erp.CatalogError
		if errors.As(err, &ce) {
			return e.sender.SendMessage(ctx, customerID, ce.UserMessage)
		}
		// Keep the confirmation state so the customer can retry.
		return e.sender.SendMessage(ctx, customerID, MsgFallback)
	}

	if err := e.mem.ResetFlow(customerID); err != nil {
		slog.Error("Engine.finalizeOrder: memory reset failed", "error", err, "customerID", customerID)
	}
	slog.Info("Engine.finalizeOrder: order created", "customerID", customerID, "order", order.Name, "total", order.Total)
	return e.sender.SendMessage(ctx, customerID, fmt.Sprintf(MsgOrderCreatedFmt, order.Name, order.Total))
}

// showCartForEditing renders the cart and asks which line to remove.
func (e *Engine) showCartForEditing(ctx context.Context, customerID string) error {
	mem, err := e.mem.GetOrCreate(customerID)
	if err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	if len(mem.CartLines) == 0 {
		if err := e.clearState(customerID); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.sender.SendMessage(ctx, customerID, MsgNoActiveOrder)
	}
	if err := e.mem.Write(customerID, MemoryUpdate{
		FlowState:  stateRef(models.StateAwaitingRemoveSelection),
		DataBuffer: strRef(""),
	}); err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	summary := RenderCartSummary(ctx, mem.CartLines, e.namer(customerID))
	return e.sender.SendMessage(ctx, customerID, summary+"\n\n"+MsgWhichRemove)
}

// handleRemoveSelection deletes the chosen cart line. "cancelar" backs out
// to the confirmation question with the cart untouched.
func (e *Engine) handleRemoveSelection(ctx context.Context, customerID string, mem *models.ConversationMemory, text string) error {
	if isCancel(text) {
		if err := e.mem.Write(customerID, MemoryUpdate{
			FlowState:  stateRef(models.StateAwaitingOrderConfirm),
			DataBuffer: strRef(""),
		}); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.sender.SendMessage(ctx, customerID, MsgRemoveCancelled)
	}

	idx := parseIndex(text, len(mem.CartLines))
	cart, err := RemoveItem(mem.CartLines, idx)
	if err != nil {
		return e.sender.SendMessage(ctx, customerID, MsgInvalidRemoveIndex)
	}

	if err := e.mem.Write(customerID, MemoryUpdate{CartLines: &cart}); err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	if len(cart) == 0 {
		if err := e.clearState(customerID); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.sender.SendMessage(ctx, customerID, MsgEmptyCart)
	}
	return e.askOrderConfirmation(ctx, customerID)
}

// handleAddressSelection resolves the chosen delivery address.
func (e *Engine) handleAddressSelection(ctx context.Context, customerID string, mem *models.ConversationMemory, text string) error {
	buf := DecodeBuffer[AddressBuffer](mem.DataBuffer)
	if len(buf.Addresses) == 0 {
		return e.finalizeOrder(ctx, customerID, 0)
	}
	idx := parseIndex(text, len(buf.Addresses))
	if idx == 0 {
		return e.sender.SendMessage(ctx, customerID, MsgInvalidAddress)
	}
	return e.finalizeOrder(ctx, customerID, buf.Addresses[idx-1].ID)
}

// handleInvoiceRequest starts the invoice retrieval flow. A message that
// already carries a matching invoice number skips the list and delivers
// directly.
func (e *Engine) handleInvoiceRequest(ctx context.Context, customerID, text string) error {
	if number := strings.Trim(invoiceNumberPattern.FindString(text), "- "); number != "" {
		inv, err := e.invoices.FindInvoiceByNumber(ctx, customerID, number)
		if err != nil {
			slog.Error("Engine.handleInvoiceRequest: direct number lookup failed", "error", err, "customerID", customerID)
		} else if inv != nil {
			return e.deliverInvoice(ctx, customerID, *inv)
		}
	}

	invoices, err := e.invoices.FindRecentInvoices(ctx, customerID, RecentInvoiceLimit)
	if err != nil {
		slog.Error("Engine.handleInvoiceRequest: invoice lookup failed", "error", err, "customerID", customerID)
		return e.sendFallback(ctx, customerID, err)
	}

	if len(invoices) == 0 {
		if err := e.mem.Write(customerID, MemoryUpdate{
			FlowState:  stateRef(models.StateAwaitingInvoiceNumber),
			DataBuffer: strRef(""),
		}); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.sender.SendMessage(ctx, customerID, MsgAskInvoiceNumber)
	}

	buf := InvoiceBuffer{Invoices: invoices}
	if err := e.mem.Write(customerID, MemoryUpdate{
		FlowState:  stateRef(models.StateAwaitingInvoiceChoice),
		DataBuffer: strRef(EncodeBuffer(buf)),
	}); err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	var sb strings.Builder
	for i, inv := range invoices {
		fmt.Fprintf(&sb, "%d. %s (%s) $%.2f\n", i+1, inv.Name, inv.Date.Format("02/01/2006"), inv.Total)
	}
	return e.sender.SendMessage(ctx, customerID,
		fmt.Sprintf(MsgInvoiceListFmt, strings.TrimRight(sb.String(), "\n")))
}

// handleInvoiceChoice resolves a list index or a typed invoice number.
// "cancelar" leaves the flow.
func (e *Engine) handleInvoiceChoice(ctx context.Context, customerID string, mem *models.ConversationMemory, text string) error {
	if isCancel(text) {
		if err := e.clearState(customerID); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.sender.SendMessage(ctx, customerID, MsgInvoiceCancelled)
	}

	buf := DecodeBuffer[InvoiceBuffer](mem.DataBuffer)

	if idx := parseIndex(text, len(buf.Invoices)); idx > 0 {
		return e.deliverInvoice(ctx, customerID, buf.Invoices[idx-1])
	}

	inv, err := e.invoices.FindInvoiceByNumber(ctx, customerID, strings.TrimSpace(text))
	if err != nil {
		slog.Error("Engine.handleInvoiceChoice: lookup failed", "error", err, "customerID", customerID)
		return e.sendFallback(ctx, customerID, err)
	}
	if inv == nil {
		// Stay in this state and re-offer the list.
		return e.sender.SendMessage(ctx, customerID, MsgInvoiceNotFoundList)
	}
	return e.deliverInvoice(ctx, customerID, *inv)
}

// handleInvoiceNumber resolves a free-text invoice number. "cancelar"
// leaves the flow.
func (e *Engine) handleInvoiceNumber(ctx context.Context, customerID string, mem *models.ConversationMemory, text string) error {
	if isCancel(text) {
		if err := e.clearState(customerID); err != nil {
			return e.sendFallback(ctx, customerID, err)
		}
		return e.sender.SendMessage(ctx, customerID, MsgInvoiceCancelled)
	}

	inv, err := e.invoices.FindInvoiceByNumber(ctx, customerID, strings.TrimSpace(text))
	if err != nil {
		slog.Error("Engine.handleInvoiceNumber: lookup failed", "error", err, "customerID", customerID)
		return e.sendFallback(ctx, customerID, err)
	}
	if err := e.clearState(customerID); err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	if inv == nil {
		return e.sender.SendMessage(ctx, customerID, MsgInvoiceNotFound)
	}
	return e.deliverInvoice(ctx, customerID, *inv)
}

// deliverInvoice sends the invoice document via the messaging template and
// closes the retrieval flow.
func (e *Engine) deliverInvoice(ctx context.Context, customerID string, inv models.InvoiceRef) error {
	if err := e.clearState(customerID); err != nil {
		return e.sendFallback(ctx, customerID, err)
	}
	if err := e.sender.SendTemplate(ctx, customerID, TemplateInvoiceDelivery, map[string]string{"factura": inv.Name}); err != nil {
		slog.Error("Engine.deliverInvoice: template send failed", "error", err, "customerID", customerID, "invoice", inv.Name)
		return e.sender.SendMessage(ctx, customerID, MsgFallback)
	}
	return e.sender.SendMessage(ctx, customerID, fmt.Sprintf(MsgInvoiceSentFmt, inv.Name))
}

// handleProductQuery answers a catalog question without starting an order.
func (e *Engine) handleProductQuery(ctx context.Context, customerID, text string) error {
	variants, err := e.catalog.FindVariants(ctx, customerID, text)
	if err != nil {
		return e.sendCatalogError(ctx, customerID, err)
	}
	var sb strings.Builder
	sb.WriteString("Esto es lo que encontré:\n")
	for _, v := range variants {
		fmt.Fprintf(&sb, "- %s: $%.2f (stock: %d)\n", v.DisplayName, v.UnitPrice, v.AvailableQty)
	}
	sb.WriteString("\nSi querés pedir alguno, decime el producto y la cantidad.")
	return e.sender.SendMessage(ctx, customerID, sb.String())
}

// sendCatalogError relays a CatalogError to the customer, or the generic
// fallback for infrastructure failures.
func (e *Engine) sendCatalogError(ctx context.Context, customerID string, err error) error {
	var ce *erp.CatalogError
	if errors.As(err, &ce) {
		return e.sender.SendMessage(ctx, customerID, ce.UserMessage)
	}
	slog.Error("Engine.sendCatalogError: catalog failure", "error", err, "customerID", customerID)
	return e.sender.SendMessage(ctx, customerID, MsgFallback)
}

// sendGenerated sends an AI-generated reply with a fixed fallback text.
func (e *Engine) sendGenerated(ctx context.Context, customerID, systemPrompt, userMessage, fallback string) error {
	reply, err := e.ai.GenerateReply(ctx, systemPrompt, userMessage)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			slog.Error("Engine.sendGenerated: generation failed, using fallback", "error", err, "customerID", customerID)
		}
		reply = fallback
	}
	return e.sender.SendMessage(ctx, customerID, reply)
}

// sendFallback reports an internal failure to the customer and returns the
// original error for logging upstream.
func (e *Engine) sendFallback(ctx context.Context, customerID string, cause error) error {
	if sendErr := e.sender.SendMessage(ctx, customerID, MsgFallback); sendErr != nil {
		slog.Error("Engine.sendFallback: fallback send failed", "error", sendErr, "customerID", customerID)
	}
	return cause
}

// clearState drops the waiting state and its buffer.
func (e *Engine) clearState(customerID string) error {
	return e.mem.Write(customerID, MemoryUpdate{FlowState: stateRef(""), DataBuffer: strRef("")})
}

// namer adapts the catalog to cart rendering for one customer.
func (e *Engine) namer(customerID string) variantNamer {
	return catalogNamer{catalog: e.catalog, customerID: customerID}
}

type catalogNamer struct {
	catalog    erp.CatalogService
	customerID string
}

func (n catalogNamer) VariantName(ctx context.Context, productID int64) (string, bool) {
	v, err := n.catalog.GetVariant(ctx, n.customerID, productID)
	if err != nil || v == nil {
		return "", false
	}
	return v.DisplayName, true
}

// renderVariantList formats candidate variants as a numbered list.
func renderVariantList(variants []models.CatalogVariant) string {
	var sb strings.Builder
	for i, v := range variants {
		fmt.Fprintf(&sb, "%d. %s ($%.2f)\n", i+1, v.DisplayName, v.UnitPrice)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// invoiceNumberPattern matches an invoice number embedded in free text.
var invoiceNumberPattern = regexp.MustCompile(`\d[\d\- ]*`)

// isCancel recognizes the explicit cancel keyword.
func isCancel(text string) bool {
	return strings.ToLower(strings.TrimSpace(text)) == "cancelar"
}

// parseIndex interprets text as a strict 1-based list index. Returns 0 for
// anything that is not a bare number within range.
func parseIndex(text string, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > max {
		return 0
	}
	return n
}

// parseQuantity extracts the first integer token from the message; digits
// answer the quantity question without a model round trip.
func parseQuantity(text string) int {
	for _, field := range strings.Fields(text) {
		if n, err := strconv.Atoi(field); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// parseYesNo recognizes unambiguous affirmative and negative answers.
// known is false when the text needs the classifier.
func parseYesNo(text string) (yes, known bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "si", "sí", "dale", "ok", "okay", "claro", "confirmo", "confirmar":
		return true, true
	case "no", "nop", "negativo":
		return false, true
	}
	return false, false
}

// Package models defines core data types shared across pedidobot modules.
//
// It covers conversation memory, cart contents, catalog lookups and the
// message types exchanged with the messaging layer.
package models

import "time"

// StatusType represents the delivery status of an outbound message.
type StatusType string

// Message status constants.
const (
	StatusTypeSent      StatusType = "sent"
	StatusTypeDelivered StatusType = "delivered"
	StatusTypeRead      StatusType = "read"
	StatusTypeFailed    StatusType = "failed"
)

// Receipt records a delivery status event for an outbound message.
type Receipt struct {
	To     string     `json:"to"`
	Status StatusType `json:"status"`
	Time   int64      `json:"time"`
}

// Response is an inbound message from a customer.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// CartLine is a single product entry in a customer's in-progress order.
// Lines are unique per ProductID; adding the same product again merges
// quantities.
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CatalogVariant is a sellable product variant as resolved by the catalog,
// priced for the requesting customer.
type CatalogVariant struct {
	ID           int64   `json:"id"`
	DisplayName  string  `json:"display_name"`
	UnitPrice    float64 `json:"unit_price"`
	AvailableQty int     `json:"available_qty"`
}

// OrderRef identifies a confirmed sale order.
type OrderRef struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

// InvoiceRef identifies a posted invoice available for retrieval.
type InvoiceRef struct {
	ID    int64     `json:"id"`
	Name  string    `json:"name"`
	Date  time.Time `json:"date"`
	Total float64   `json:"total"`
}

// DeliveryAddress is a shipping destination registered for a customer.
type DeliveryAddress struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// CustomerType classifies a customer for pricing and routing purposes.
type CustomerType string

// Known customer types. An empty value means the customer has not completed
// onboarding yet.
const (
	CustomerTypeWalkIn     CustomerType = "Consumidor Final"
	CustomerTypeBusiness   CustomerType = "EMPRESA"
	CustomerTypeWholesaler CustomerType = "Mayorista"
)

// CustomerProfile holds the identity fields the onboarding gate requires
// before a customer may use the ordering flows.
type CustomerProfile struct {
	ID           int64        `json:"id"`
	Phone        string       `json:"phone"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	CustomerType CustomerType `json:"customer_type"`
}

// Complete reports whether all onboarding-required fields are present.
func (p *CustomerProfile) Complete() bool {
	return p.Name != "" && p.Email != "" && p.CustomerType != ""
}

// ConversationMemory is the per-customer dialogue record. One row exists per
// customer, keyed by the canonical phone number. FlowState empty means no
// flow is in progress and the next message is routed by intent.
type ConversationMemory struct {
	CustomerID       string     `json:"customer_id"`
	FlowState        StateType  `json:"flow_state"`
	LastIntent       string     `json:"last_intent"`
	DataBuffer       string     `json:"data_buffer"`
	CartLines        []CartLine `json:"cart_lines"`
	LastVariantID    int64      `json:"last_variant_id"`
	LastQtySuggested int        `json:"last_qty_suggested"`
	HumanTakeover    bool       `json:"human_takeover"`
	TakeoverUntil    *time.Time `json:"takeover_until,omitempty"`
	LastActivityAt   time.Time  `json:"last_activity_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// UnderTakeover reports whether the bot must stay silent for this customer
// at the given instant. An expired timed takeover no longer suppresses.
func (m *ConversationMemory) UnderTakeover(now time.Time) bool {
	if !m.HumanTakeover {
		return false
	}
	if m.TakeoverUntil == nil {
		return true
	}
	return now.Before(*m.TakeoverUntil)
}

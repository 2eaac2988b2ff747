// Package erp defines the interfaces to the business backend: catalog,
// orders, invoices and customer records.
//
// The dialogue engine depends only on these interfaces. A SQLite-backed
// reference implementation lives in this package so the bot runs end to end
// without an external ERP; production deployments plug in their own.
package erp

import (
	"context"

	"github.com/pedidobot/pedidobot/internal/models"
)

// CatalogError is a lookup failure with a message safe to show the
// customer, such as "product not found" or "out of stock".
type CatalogError struct {
	UserMessage string
}

func (e *CatalogError) Error() string { return e.UserMessage }

// NewCatalogError creates a CatalogError with the given customer-facing text.
func NewCatalogError(msg string) *CatalogError {
	return &CatalogError{UserMessage: msg}
}

// CatalogService resolves free-text product queries to sellable variants,
// priced for the requesting customer.
type CatalogService interface {
	// FindVariants returns the variants matching query. It returns a
	// *CatalogError when the failure should be relayed to the customer
	// (no match, no stock, no price list for their customer type).
	FindVariants(ctx context.Context, customerID, query string) ([]models.CatalogVariant, error)

	// GetVariant resolves one variant by id, priced for the customer.
	// Returns (nil, nil) when the variant no longer exists.
	GetVariant(ctx context.Context, customerID string, variantID int64) (*models.CatalogVariant, error)
}

// OrderService creates sale orders from confirmed carts.
type OrderService interface {
	// CreateOrder creates an order for the given cart. addressID 0 means
	// the customer's default address.
	CreateOrder(ctx context.Context, customerID string, lines []models.CartLine, addressID int64) (*models.OrderRef, error)
}

// InvoiceService retrieves posted invoices for a customer.
type InvoiceService interface {
	// FindRecentInvoices returns up to limit invoices, newest first.
	FindRecentInvoices(ctx context.Context, customerID string, limit int) ([]models.InvoiceRef, error)

	// FindInvoiceByNumber looks up one invoice by its document number.
	// Returns (nil, nil) when no invoice matches.
	FindInvoiceByNumber(ctx context.Context, customerID, number string) (*models.InvoiceRef, error)
}

// ProfileUpdate is a partial update of a customer profile. Nil fields are
// left unchanged.
type ProfileUpdate struct {
	Name         *string
	Email        *string
	CustomerType *models.CustomerType
}

// CustomerService reads and updates customer records.
type CustomerService interface {
	// GetProfile returns the profile for a phone number, creating a bare
	// record on first contact.
	GetProfile(ctx context.Context, customerID string) (*models.CustomerProfile, error)

	// UpdateProfile applies a partial update to the customer record.
	UpdateProfile(ctx context.Context, customerID string, update ProfileUpdate) error

	// ListDeliveryAddresses returns the customer's registered shipping
	// destinations.
	ListDeliveryAddresses(ctx context.Context, customerID string) ([]models.DeliveryAddress, error)

	// HasSalesHistory reports whether the customer has at least one
	// quotation or confirmed order on record.
	HasSalesHistory(ctx context.Context, customerID string) (bool, error)

	// CreateLead registers a CRM lead for follow-up by the sales team.
	CreateLead(ctx context.Context, customerID, note string) error
}

// Backend groups the four collaborator interfaces. The reference SQLite
// implementation satisfies all of them on one value.
type Backend interface {
	CatalogService
	OrderService
	InvoiceService
	CustomerService
}

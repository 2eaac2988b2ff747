package erp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/pedidobot/pedidobot/internal/models"
)

func newTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(WithSQLiteDSN(filepath.Join(t.TempDir(), "erp.db")))
	if err != nil {
		t.Fatalf("failed to open test backend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func (b *SQLiteBackend) seedVariant(t *testing.T, name string, listPrice float64, qty int) int64 {
	t.Helper()
	res, err := b.db.Exec(`INSERT INTO product_variants (display_name, list_price, available_qty) VALUES (?, ?, ?)`, name, listPrice, qty)
	if err != nil {
		t.Fatalf("failed to seed variant: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestSQLiteBackendProfileLifecycle(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	// First contact creates a bare record.
	p, err := b.GetProfile(ctx, "5491123456789")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if p.Phone != "5491123456789" || p.Complete() {
		t.Fatalf("unexpected fresh profile: %+v", p)
	}

	name := "Ana García"
	email := "ana@example.com"
	ctype := models.CustomerTypeWholesaler
	if err := b.UpdateProfile(ctx, "5491123456789", ProfileUpdate{Name: &name}); err != nil {
		t.Fatalf("name update failed: %v", err)
	}
	if err := b.UpdateProfile(ctx, "5491123456789", ProfileUpdate{Email: &email, CustomerType: &ctype}); err != nil {
		t.Fatalf("email/type update failed: %v", err)
	}

	p, err = b.GetProfile(ctx, "5491123456789")
	if err != nil {
		t.Fatalf("GetProfile after update failed: %v", err)
	}
	if p.Name != name || p.Email != email || p.CustomerType != ctype || !p.Complete() {
		t.Errorf("profile not updated: %+v", p)
	}
}

func TestSQLiteBackendCatalogPricing(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	id := b.seedVariant(t, "Yerba Mate 1kg", 10, 50)
	if _, err := b.db.Exec(`INSERT INTO pricelist_items (customer_type, variant_id, unit_price) VALUES (?, ?, ?)`,
		string(models.CustomerTypeWholesaler), id, 7.5); err != nil {
		t.Fatalf("failed to seed pricelist: %v", err)
	}

	ctype := models.CustomerTypeWholesaler
	if err := b.UpdateProfile(ctx, "111111", ProfileUpdate{CustomerType: &ctype}); err != nil {
		t.Fatalf("type update failed: %v", err)
	}

	// The wholesaler gets the price list price.
	variants, err := b.FindVariants(ctx, "111111", "yerba")
	if err != nil {
		t.Fatalf("FindVariants failed: %v", err)
	}
	if len(variants) != 1 || variants[0].UnitPrice != 7.5 {
		t.Errorf("expected wholesale price 7.5, got %+v", variants)
	}

	// A customer without a price list falls back to the list price.
	variants, err = b.FindVariants(ctx, "222222", "yerba")
	if err != nil {
		t.Fatalf("FindVariants for new customer failed: %v", err)
	}
	if len(variants) != 1 || variants[0].UnitPrice != 10 {
		t.Errorf("expected list price 10, got %+v", variants)
	}

	// A miss returns a customer-facing CatalogError.
	_, err = b.FindVariants(ctx, "111111", "inexistente")
	var ce *CatalogError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CatalogError, got %v", err)
	}
	if ce.UserMessage == "" {
		t.Error("expected a customer-facing message")
	}
}

func TestSQLiteBackendCreateOrder(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	yerba := b.seedVariant(t, "Yerba Mate 1kg", 10, 50)
	azucar := b.seedVariant(t, "Azúcar 1kg", 4, 50)

	verified, err := b.HasSalesHistory(ctx, "111111")
	if err != nil || verified {
		t.Fatalf("expected no sales history yet, got %v err=%v", verified, err)
	}

	order, err := b.CreateOrder(ctx, "111111", []models.CartLine{
		{ProductID: yerba, Quantity: 2},
		{ProductID: azucar, Quantity: 3},
	}, 0)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.Name != "S00001" {
		t.Errorf("expected order name S00001, got %q", order.Name)
	}
	if order.Total != 2*10+3*4 {
		t.Errorf("expected total 32, got %v", order.Total)
	}

	verified, err = b.HasSalesHistory(ctx, "111111")
	if err != nil || !verified {
		t.Errorf("expected sales history after order, got %v err=%v", verified, err)
	}

	// A vanished variant fails with a customer-facing error.
	_, err = b.CreateOrder(ctx, "111111", []models.CartLine{{ProductID: 9999, Quantity: 1}}, 0)
	var ce *CatalogError
	if !errors.As(err, &ce) {
		t.Errorf("expected CatalogError for missing variant, got %v", err)
	}
}

func TestSQLiteBackendInvoices(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	profile, err := b.GetProfile(ctx, "111111")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 7; i++ {
		if _, err := b.db.Exec(`INSERT INTO invoices (name, customer_id, date, total) VALUES (?, ?, ?, ?)`,
			fmt.Sprintf("FA-%04d", i), profile.ID, base.AddDate(0, 0, i), float64(i*10)); err != nil {
			t.Fatalf("failed to seed invoice: %v", err)
		}
	}

	invoices, err := b.FindRecentInvoices(ctx, "111111", 5)
	if err != nil {
		t.Fatalf("FindRecentInvoices failed: %v", err)
	}
	if len(invoices) != 5 {
		t.Fatalf("expected 5 invoices, got %d", len(invoices))
	}
	if !invoices[0].Date.After(invoices[4].Date) {
		t.Errorf("expected newest first, got %v then %v", invoices[0].Date, invoices[4].Date)
	}

	inv, err := b.FindInvoiceByNumber(ctx, "111111", "FA-0003")
	if err != nil {
		t.Fatalf("FindInvoiceByNumber failed: %v", err)
	}
	if inv == nil || inv.Name != "FA-0003" {
		t.Errorf("expected FA-0003, got %+v", inv)
	}

	inv, err = b.FindInvoiceByNumber(ctx, "111111", "FA-9999")
	if err != nil || inv != nil {
		t.Errorf("expected (nil, nil) for unknown invoice, got %+v err=%v", inv, err)
	}
}

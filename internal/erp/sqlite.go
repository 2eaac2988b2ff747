// Package erp: SQLite reference backend.
package erp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/pedidobot/pedidobot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Opts holds configuration options for the SQLite backend.
type Opts struct {
	DSN string
}

// Option defines a configuration option for the SQLite backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// SQLiteBackend implements Backend against a local SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens the backend database and applies migrations.
func NewSQLiteBackend(opts ...Option) (*SQLiteBackend, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("backend database DSN not set")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0755); err != nil {
		return nil, fmt.Errorf("failed to create backend database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open backend database", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		return nil, fmt.Errorf("failed to run backend migrations: %w", err)
	}
	slog.Debug("SQLiteBackend ready", "dsn", cfg.DSN)
	return &SQLiteBackend{db: db}, nil
}

// Close closes the backend database.
func (b *SQLiteBackend) Close() error { return b.db.Close() }

// FindVariants resolves a product query for a customer, applying the price
// list for their customer type when one exists.
func (b *SQLiteBackend) FindVariants(ctx context.Context, customerID, query string) ([]models.CatalogVariant, error) {
	profile, err := b.GetProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT v.id, v.display_name,
		       COALESCE(p.unit_price, v.list_price),
		       v.available_qty
		FROM product_variants v
		LEFT JOIN pricelist_items p
		       ON p.variant_id = v.id AND p.customer_type = ?
		WHERE v.display_name LIKE ?
		ORDER BY v.display_name
		LIMIT 10`,
		string(profile.CustomerType), "%"+query+"%")
	if err != nil {
		slog.Error("SQLiteBackend FindVariants query failed", "error", err, "query", query)
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer rows.Close()

	var variants []models.CatalogVariant
	for rows.Next() {
		var v models.CatalogVariant
		if err := rows.Scan(&v.ID, &v.DisplayName, &v.UnitPrice, &v.AvailableQty); err != nil {
			return nil, fmt.Errorf("catalog scan failed: %w", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog iteration failed: %w", err)
	}

	if len(variants) == 0 {
		return nil, NewCatalogError(fmt.Sprintf("No encontré productos que coincidan con %q.", query))
	}
	slog.Debug("SQLiteBackend FindVariants", "query", query, "matches", len(variants))
	return variants, nil
}

// GetVariant resolves one variant by id, priced for the customer.
func (b *SQLiteBackend) GetVariant(ctx context.Context, customerID string, variantID int64) (*models.CatalogVariant, error) {
	profile, err := b.GetProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}
	var v models.CatalogVariant
	err = b.db.QueryRowContext(ctx, `
		SELECT v.id, v.display_name,
		       COALESCE(p.unit_price, v.list_price),
		       v.available_qty
		FROM product_variants v
		LEFT JOIN pricelist_items p
		       ON p.variant_id = v.id AND p.customer_type = ?
		WHERE v.id = ?`,
		string(profile.CustomerType), variantID).Scan(&v.ID, &v.DisplayName, &v.UnitPrice, &v.AvailableQty)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("variant lookup failed: %w", err)
	}
	return &v, nil
}

// CreateOrder creates a sale order and its lines in one transaction.
func (b *SQLiteBackend) CreateOrder(ctx context.Context, customerID string, lines []models.CartLine, addressID int64) (*models.OrderRef, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("cannot create an order with no lines")
	}
	profile, err := b.GetProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin order transaction: %w", err)
	}
	defer tx.Rollback()

	var total float64
	type priced struct {
		variantID int64
		qty       int
		price     float64
	}
	var pricedLines []priced
	for _, l := range lines {
		var price float64
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(p.unit_price, v.list_price)
			FROM product_variants v
			LEFT JOIN pricelist_items p
			       ON p.variant_id = v.id AND p.customer_type = ?
			WHERE v.id = ?`,
			string(profile.CustomerType), l.ProductID).Scan(&price)
		if err == sql.ErrNoRows {
			return nil, NewCatalogError("Uno de los productos del pedido ya no está disponible.")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to price order line: %w", err)
		}
		total += price * float64(l.Quantity)
		pricedLines = append(pricedLines, priced{l.ProductID, l.Quantity, price})
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO sale_orders (name, customer_id, address_id, total, created_at) VALUES ('', ?, ?, ?, ?)`,
		profile.ID, addressID, total, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sale order: %w", err)
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read order id: %w", err)
	}
	name := fmt.Sprintf("S%05d", orderID)
	if _, err := tx.ExecContext(ctx, `UPDATE sale_orders SET name = ? WHERE id = ?`, name, orderID); err != nil {
		return nil, fmt.Errorf("failed to name sale order: %w", err)
	}
	for _, l := range pricedLines {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sale_order_lines (order_id, variant_id, quantity, unit_price) VALUES (?, ?, ?, ?)`,
			orderID, l.variantID, l.qty, l.price); err != nil {
			return nil, fmt.Errorf("failed to insert order line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	slog.Info("SQLiteBackend order created", "order", name, "customerID", customerID, "total", total)
	return &models.OrderRef{Name: name, Total: total}, nil
}

// FindRecentInvoices returns up to limit invoices for a customer, newest first.
func (b *SQLiteBackend) FindRecentInvoices(ctx context.Context, customerID string, limit int) ([]models.InvoiceRef, error) {
	profile, err := b.GetProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, name, date, total FROM invoices WHERE customer_id = ? ORDER BY date DESC LIMIT ?`,
		profile.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("invoice query failed: %w", err)
	}
	defer rows.Close()

	var invoices []models.InvoiceRef
	for rows.Next() {
		var inv models.InvoiceRef
		if err := rows.Scan(&inv.ID, &inv.Name, &inv.Date, &inv.Total); err != nil {
			return nil, fmt.Errorf("invoice scan failed: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// FindInvoiceByNumber looks up an invoice by document number.
func (b *SQLiteBackend) FindInvoiceByNumber(ctx context.Context, customerID, number string) (*models.InvoiceRef, error) {
	profile, err := b.GetProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}
	var inv models.InvoiceRef
	err = b.db.QueryRowContext(ctx,
		`SELECT id, name, date, total FROM invoices WHERE customer_id = ? AND name = ?`,
		profile.ID, number).Scan(&inv.ID, &inv.Name, &inv.Date, &inv.Total)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invoice lookup failed: %w", err)
	}
	return &inv, nil
}

// GetProfile returns the customer record for a phone number, creating a
// bare record on first contact.
func (b *SQLiteBackend) GetProfile(ctx context.Context, customerID string) (*models.CustomerProfile, error) {
	var p models.CustomerProfile
	var ctype string
	err := b.db.QueryRowContext(ctx,
		`SELECT id, phone, name, email, customer_type FROM customers WHERE phone = ?`,
		customerID).Scan(&p.ID, &p.Phone, &p.Name, &p.Email, &ctype)
	if err == sql.ErrNoRows {
		res, insErr := b.db.ExecContext(ctx, `INSERT INTO customers (phone) VALUES (?)`, customerID)
		if insErr != nil {
			return nil, fmt.Errorf("failed to create customer record: %w", insErr)
		}
		id, _ := res.LastInsertId()
		slog.Info("SQLiteBackend new customer record", "customerID", customerID)
		return &models.CustomerProfile{ID: id, Phone: customerID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("customer lookup failed: %w", err)
	}
	p.CustomerType = models.CustomerType(ctype)
	return &p, nil
}

// UpdateProfile applies a partial update to the customer record.
func (b *SQLiteBackend) UpdateProfile(ctx context.Context, customerID string, update ProfileUpdate) error {
	profile, err := b.GetProfile(ctx, customerID)
	if err != nil {
		return err
	}
	if update.Name != nil {
		if _, err := b.db.ExecContext(ctx, `UPDATE customers SET name = ? WHERE id = ?`, *update.Name, profile.ID); err != nil {
			return fmt.Errorf("failed to update customer name: %w", err)
		}
	}
	if update.Email != nil {
		if _, err := b.db.ExecContext(ctx, `UPDATE customers SET email = ? WHERE id = ?`, *update.Email, profile.ID); err != nil {
			return fmt.Errorf("failed to update customer email: %w", err)
		}
	}
	if update.CustomerType != nil {
		if _, err := b.db.ExecContext(ctx, `UPDATE customers SET customer_type = ? WHERE id = ?`, string(*update.CustomerType), profile.ID); err != nil {
			return fmt.Errorf("failed to update customer type: %w", err)
		}
	}
	return nil
}

// ListDeliveryAddresses returns the customer's registered shipping destinations.
func (b *SQLiteBackend) ListDeliveryAddresses(ctx context.Context, customerID string) ([]models.DeliveryAddress, error) {
	profile, err := b.GetProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, label FROM delivery_addresses WHERE customer_id = ? ORDER BY id`, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("address query failed: %w", err)
	}
	defer rows.Close()

	var addrs []models.DeliveryAddress
	for rows.Next() {
		var a models.DeliveryAddress
		if err := rows.Scan(&a.ID, &a.Label); err != nil {
			return nil, fmt.Errorf("address scan failed: %w", err)
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// HasSalesHistory reports whether the customer has any order on record.
func (b *SQLiteBackend) HasSalesHistory(ctx context.Context, customerID string) (bool, error) {
	profile, err := b.GetProfile(ctx, customerID)
	if err != nil {
		return false, err
	}
	var n int
	err = b.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sale_orders WHERE customer_id = ?`, profile.ID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sales history lookup failed: %w", err)
	}
	return n > 0, nil
}

// CreateLead registers a CRM lead for follow-up.
func (b *SQLiteBackend) CreateLead(ctx context.Context, customerID, note string) error {
	profile, err := b.GetProfile(ctx, customerID)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO crm_leads (customer_id, note, created_at) VALUES (?, ?, ?)`,
		profile.ID, note, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	slog.Info("SQLiteBackend lead created", "customerID", customerID)
	return nil
}

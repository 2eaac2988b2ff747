package flow

import (
	"context"
	"strings"
	"sync"

	"github.com/pedidobot/pedidobot/internal/erp"
	"github.com/pedidobot/pedidobot/internal/genai"
	"github.com/pedidobot/pedidobot/internal/models"
)

// fakeSender records outbound messages and templates for assertions.
type fakeSender struct {
	mu        sync.Mutex
	messages  []string
	templates []sentTemplate
	sendErr   error
}

type sentTemplate struct {
	to       string
	template string
	vars     map[string]string
}

func (f *fakeSender) SendMessage(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages, body)
	return nil
}

func (f *fakeSender) SendTemplate(ctx context.Context, to, template string, vars map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.templates = append(f.templates, sentTemplate{to: to, template: template, vars: vars})
	return nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

func (f *fakeSender) contains(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// fakeAI answers from canned data. classifyQueue is consumed front to back;
// when empty, classifyDefault is returned.
type fakeAI struct {
	classifyQueue   []string
	classifyDefault string
	products        []genai.ProductQuery
	productsErr     error
	quantity        int
	quantityErr     error
	disambigIdx     int
	disambigErr     error
	reply           string
	replyErr        error
}

func (f *fakeAI) Classify(ctx context.Context, systemPrompt, userMessage string) string {
	if len(f.classifyQueue) > 0 {
		label := f.classifyQueue[0]
		f.classifyQueue = f.classifyQueue[1:]
		return label
	}
	if f.classifyDefault != "" {
		return f.classifyDefault
	}
	return genai.ClassifyOther
}

func (f *fakeAI) ExtractProducts(ctx context.Context, text string) ([]genai.ProductQuery, error) {
	return f.products, f.productsErr
}

func (f *fakeAI) ExtractQuantity(ctx context.Context, text string) (int, error) {
	return f.quantity, f.quantityErr
}

func (f *fakeAI) DisambiguateIndex(ctx context.Context, options []string, reply string) (int, error) {
	return f.disambigIdx, f.disambigErr
}

func (f *fakeAI) GenerateReply(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	return f.reply, f.replyErr
}

// fakeBackend implements erp.Backend from in-memory maps.
type fakeBackend struct {
	variantsByQuery map[string][]models.CatalogVariant
	variantsByID    map[int64]models.CatalogVariant
	findErr         error

	profiles map[string]*models.CustomerProfile

	addresses []models.DeliveryAddress
	invoices  []models.InvoiceRef

	salesHistory map[string]bool
	leads        []string

	createdOrders []createdOrder
	orderErr      error
	nextOrder     models.OrderRef
}

type createdOrder struct {
	customerID string
	lines      []models.CartLine
	addressID  int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		variantsByQuery: make(map[string][]models.CatalogVariant),
		variantsByID:    make(map[int64]models.CatalogVariant),
		profiles:        make(map[string]*models.CustomerProfile),
		salesHistory:    make(map[string]bool),
		nextOrder:       models.OrderRef{Name: "S00042", Total: 100},
	}
}

func (f *fakeBackend) addVariant(query string, v models.CatalogVariant) {
	f.variantsByQuery[query] = append(f.variantsByQuery[query], v)
	f.variantsByID[v.ID] = v
}

func (f *fakeBackend) FindVariants(ctx context.Context, customerID, query string) ([]models.CatalogVariant, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	variants, ok := f.variantsByQuery[query]
	if !ok || len(variants) == 0 {
		return nil, erp.NewCatalogError("No encontré productos que coincidan con " + query + ".")
	}
	return variants, nil
}

func (f *fakeBackend) GetVariant(ctx context.Context, customerID string, variantID int64) (*models.CatalogVariant, error) {
	v, ok := f.variantsByID[variantID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (f *fakeBackend) CreateOrder(ctx context.Context, customerID string, lines []models.CartLine, addressID int64) (*models.OrderRef, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.createdOrders = append(f.createdOrders, createdOrder{customerID: customerID, lines: lines, addressID: addressID})
	order := f.nextOrder
	return &order, nil
}

func (f *fakeBackend) FindRecentInvoices(ctx context.Context, customerID string, limit int) ([]models.InvoiceRef, error) {
	if limit > len(f.invoices) {
		limit = len(f.invoices)
	}
	return f.invoices[:limit], nil
}

func (f *fakeBackend) FindInvoiceByNumber(ctx context.Context, customerID, number string) (*models.InvoiceRef, error) {
	for _, inv := range f.invoices {
		if inv.Name == number {
			return &inv, nil
		}
	}
	return nil, nil
}

func (f *fakeBackend) GetProfile(ctx context.Context, customerID string) (*models.CustomerProfile, error) {
	if p, ok := f.profiles[customerID]; ok {
		copied := *p
		return &copied, nil
	}
	p := &models.CustomerProfile{ID: int64(len(f.profiles) + 1), Phone: customerID}
	f.profiles[customerID] = p
	copied := *p
	return &copied, nil
}

func (f *fakeBackend) UpdateProfile(ctx context.Context, customerID string, update erp.ProfileUpdate) error {
	p, ok := f.profiles[customerID]
	if !ok {
		p = &models.CustomerProfile{Phone: customerID}
		f.profiles[customerID] = p
	}
	if update.Name != nil {
		p.Name = *update.Name
	}
	if update.Email != nil {
		p.Email = *update.Email
	}
	if update.CustomerType != nil {
		p.CustomerType = *update.CustomerType
	}
	return nil
}

func (f *fakeBackend) ListDeliveryAddresses(ctx context.Context, customerID string) ([]models.DeliveryAddress, error) {
	return f.addresses, nil
}

func (f *fakeBackend) HasSalesHistory(ctx context.Context, customerID string) (bool, error) {
	return f.salesHistory[customerID], nil
}

func (f *fakeBackend) CreateLead(ctx context.Context, customerID, note string) error {
	f.leads = append(f.leads, note)
	return nil
}

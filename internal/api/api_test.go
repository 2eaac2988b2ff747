package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pedidobot/pedidobot/internal/erp"
	"github.com/pedidobot/pedidobot/internal/flow"
	"github.com/pedidobot/pedidobot/internal/genai"
	"github.com/pedidobot/pedidobot/internal/messaging"
	"github.com/pedidobot/pedidobot/internal/models"
	"github.com/pedidobot/pedidobot/internal/store"
	"github.com/pedidobot/pedidobot/internal/twiliowhatsapp"
)

// stubAI satisfies genai.ClientInterface for handler tests.
type stubAI struct{}

func (stubAI) Classify(ctx context.Context, systemPrompt, userMessage string) string { return "otro" }
func (stubAI) ExtractProducts(ctx context.Context, text string) ([]genai.ProductQuery, error) {
	return nil, nil
}
func (stubAI) ExtractQuantity(ctx context.Context, text string) (int, error) { return 0, nil }
func (stubAI) DisambiguateIndex(ctx context.Context, options []string, reply string) (int, error) {
	return 0, nil
}
func (stubAI) GenerateReply(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	return "ok", nil
}

func newTestServer(t *testing.T) (*server, *flow.MemoryManager) {
	t.Helper()

	backend, err := erp.NewSQLiteBackend(erp.WithSQLiteDSN(filepath.Join(t.TempDir(), "erp.db")))
	if err != nil {
		t.Fatalf("failed to open test backend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	transport := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	memory := flow.NewMemoryManager(store.NewInMemoryStore())
	engine := flow.NewEngine(memory, stubAI{}, backend, transport)
	onboarding := flow.NewOnboarding(memory, backend, transport)
	supervisor := flow.NewSupervisor(memory, backend, transport)
	dispatcher := messaging.NewDispatcher(transport, engine, onboarding, supervisor, backend)

	return &server{memory: memory, dispatcher: dispatcher, twilioSvc: transport}, memory
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}

func TestMemoryHandler(t *testing.T) {
	srv, memory := newTestServer(t)
	mux := srv.routes()

	// Unknown customer: 404
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/memories/5491123456789", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown customer, got %d", rec.Code)
	}

	state := models.StateAwaitingQuantity
	if err := memory.Write("5491123456789", flow.MemoryUpdate{FlowState: &state}); err != nil {
		t.Fatalf("setup write failed: %v", err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/memories/5491123456789", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), string(models.StateAwaitingQuantity)) {
		t.Errorf("expected flow state in body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/memories/5491123456789", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	mem, err := memory.Read("5491123456789")
	if err != nil || mem != nil {
		t.Errorf("expected memory deleted, got %+v err=%v", mem, err)
	}
}

func TestAgentMessageHandler(t *testing.T) {
	srv, memory := newTestServer(t)
	mux := srv.routes()

	body := strings.NewReader(`{"to": "5491123456789", "body": "/off"}`)
	req := httptest.NewRequest(http.MethodPost, "/agent/message", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	mem, err := memory.Read("5491123456789")
	if err != nil || mem == nil || !mem.HumanTakeover {
		t.Fatalf("expected takeover set, mem=%+v err=%v", mem, err)
	}
}

func TestAgentMessageHandlerValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/message", strings.NewReader("{nope")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/message", strings.NewReader(`{"to": ""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing fields, got %d", rec.Code)
	}
}

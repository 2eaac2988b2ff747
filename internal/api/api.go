// Package api provides the HTTP surface and the main server wiring.
//
// It boots the store, the ERP backend, the GenAI client, the messaging
// transport and the dialogue layers, then serves the webhook and the
// operational endpoints until the process is signalled to stop.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pedidobot/pedidobot/internal/erp"
	"github.com/pedidobot/pedidobot/internal/flow"
	"github.com/pedidobot/pedidobot/internal/genai"
	"github.com/pedidobot/pedidobot/internal/messaging"
	"github.com/pedidobot/pedidobot/internal/scheduler"
	"github.com/pedidobot/pedidobot/internal/store"
	"github.com/pedidobot/pedidobot/internal/twiliowhatsapp"
	"github.com/pedidobot/pedidobot/internal/whatsapp"
)

// Transport names accepted by WithTransport.
const (
	TransportWhatsmeow = "whatsmeow"
	TransportTwilio    = "twilio"
)

// DefaultAddr is the default API listen address.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	Transport   string
	IdleTTL     time.Duration
	WebStoreURL string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTransport selects the messaging transport ("whatsmeow" or "twilio").
func WithTransport(name string) Option {
	return func(o *Opts) { o.Transport = name }
}

// WithIdleTTL overrides the idle conversation time-to-live.
func WithIdleTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.IdleTTL = ttl }
}

// WithWebStoreURL sets the web store address used in walk-in redirects.
func WithWebStoreURL(url string) Option {
	return func(o *Opts) { o.WebStoreURL = url }
}

// server holds the wired components for the HTTP handlers.
type server struct {
	memory     *flow.MemoryManager
	dispatcher *messaging.Dispatcher
	twilioSvc  *messaging.TwilioService
}

// Run wires all modules and serves until SIGINT or SIGTERM. It returns
// only on fatal startup errors or after a clean shutdown.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, erpOpts []erp.Option, genaiOpts []genai.Option, twilioOpts []twiliowhatsapp.Option, apiOpts []Option) error {
	cfg := Opts{
		Addr:      DefaultAddr,
		Transport: TransportWhatsmeow,
		IdleTTL:   scheduler.DefaultIdleTTL,
	}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	st, err := store.NewStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize conversation store: %w", err)
	}
	defer st.Close()

	backend, err := erp.NewSQLiteBackend(erpOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize ERP backend: %w", err)
	}
	defer backend.Close()

	ai, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize GenAI client: %w", err)
	}

	svc, twilioSvc, err := buildMessagingService(cfg.Transport, waOpts, twilioOpts)
	if err != nil {
		return err
	}

	memory := flow.NewMemoryManager(st)
	var engineOpts []flow.EngineOption
	if cfg.WebStoreURL != "" {
		engineOpts = append(engineOpts, flow.WithDefaultWebStoreURL(cfg.WebStoreURL))
	}
	engine := flow.NewEngine(memory, ai, backend, svc, engineOpts...)
	onboarding := flow.NewOnboarding(memory, backend, svc)
	supervisor := flow.NewSupervisor(memory, backend, svc)
	dispatcher := messaging.NewDispatcher(svc, engine, onboarding, supervisor, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer svc.Stop()

	go dispatcher.Run(ctx)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.RegisterMaintenanceJobs(st, memory, scheduler.WithIdleTTL(cfg.IdleTTL)); err != nil {
		return fmt.Errorf("failed to register maintenance jobs: %w", err)
	}

	srv := &server{memory: memory, dispatcher: dispatcher, twilioSvc: twilioSvc}
	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv.routes()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", cfg.Addr, "transport", cfg.Transport)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	cancel()
	slog.Info("API server stopped")
	return nil
}

// buildMessagingService creates the configured transport. The Twilio
// service is returned separately so its webhook handler can be mounted.
func buildMessagingService(transport string, waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option) (messaging.Service, *messaging.TwilioService, error) {
	switch transport {
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(twilioOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc, nil
	case TransportWhatsmeow:
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging transport %q", transport)
	}
}

// routes builds the HTTP mux.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/agent/message", s.agentMessageHandler)
	mux.HandleFunc("/memories/", s.memoryHandler)
	if s.twilioSvc != nil {
		mux.HandleFunc("/webhook/twilio", s.twilioSvc.TwilioWebhookHandler)
	}
	return mux
}

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// agentMessageRequest is the payload for notifying the bot that a human
// agent wrote to a customer. Body "/off" suspends the bot for that
// customer, "/on" resumes it, anything else applies the reply cooldown.
type agentMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *server) agentMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req agentMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" || req.Body == "" {
		writeJSONError(w, http.StatusBadRequest, "to and body are required")
		return
	}
	if err := s.dispatcher.HandleAgentMessage(req.To, req.Body); err != nil {
		slog.Error("agentMessageHandler failed", "error", err, "to", req.To)
		writeJSONError(w, http.StatusInternalServerError, "failed to process agent message")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// memoryHandler serves GET and DELETE on /memories/{customerID} for
// operational inspection and manual resets.
func (s *server) memoryHandler(w http.ResponseWriter, r *http.Request) {
	customerID := strings.TrimPrefix(r.URL.Path, "/memories/")
	if customerID == "" || strings.Contains(customerID, "/") {
		writeJSONError(w, http.StatusBadRequest, "customer id required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		mem, err := s.memory.Read(customerID)
		if err != nil {
			slog.Error("memoryHandler read failed", "error", err, "customerID", customerID)
			writeJSONError(w, http.StatusInternalServerError, "failed to read memory")
			return
		}
		if mem == nil {
			writeJSONError(w, http.StatusNotFound, "no memory for customer")
			return
		}
		writeJSONResponse(w, http.StatusOK, mem)
	case http.MethodDelete:
		if err := s.memory.Delete(customerID); err != nil {
			slog.Error("memoryHandler delete failed", "error", err, "customerID", customerID)
			writeJSONError(w, http.StatusInternalServerError, "failed to delete memory")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

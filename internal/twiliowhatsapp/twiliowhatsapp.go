// Package twiliowhatsapp wraps the Twilio API for WhatsApp delivery.
package twiliowhatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioWhatsAppSender defines the outbound operations the messaging layer
// needs from Twilio. Implemented by Client and by MockClient.
type TwilioWhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error

	// SendTemplate sends an approved content template by its registered
	// name, with the given template variables.
	SendTemplate(ctx context.Context, to string, template string, vars map[string]string) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
	// TemplateSIDs maps template names (e.g. "envio_factura") to the
	// Twilio content SID of the approved template.
	TemplateSIDs map[string]string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number, in
// "whatsapp:+1234567890" format.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// WithTemplateSID registers the Twilio content SID for a template name.
func WithTemplateSID(name, sid string) Option {
	return func(o *Opts) {
		if o.TemplateSIDs == nil {
			o.TemplateSIDs = make(map[string]string)
		}
		o.TemplateSIDs[name] = sid
	}
}

// Client wraps the Twilio REST API for WhatsApp.
type Client struct {
	client       *twilio.RestClient
	fromWhats    string
	templateSIDs map[string]string
}

// NewClient creates a Twilio WhatsApp client. Credentials fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER environment
// variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "",
		"templates", len(cfg.TemplateSIDs))

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:       client,
		fromWhats:    cfg.FromWhats,
		templateSIDs: cfg.TemplateSIDs,
	}, nil
}

// SendMessage sends a free-form WhatsApp message.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + to)
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	slog.Debug("Twilio message sent", "to", to)
	return nil
}

// SendTemplate sends an approved content template. The template name must
// have been registered with WithTemplateSID.
func (c *Client) SendTemplate(ctx context.Context, to string, template string, vars map[string]string) error {
	sid, ok := c.templateSIDs[template]
	if !ok {
		return fmt.Errorf("no content SID registered for template %q", template)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + to)
	params.SetFrom(c.fromWhats)
	params.SetContentSid(sid)
	if len(vars) > 0 {
		encoded, err := json.Marshal(vars)
		if err != nil {
			return fmt.Errorf("failed to encode template variables: %w", err)
		}
		params.SetContentVariables(string(encoded))
	}

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendTemplate failed", "to", to, "template", template, "error", err)
		return fmt.Errorf("failed to send template %s to %s: %w", template, to, err)
	}

	slog.Debug("Twilio template sent", "to", to, "template", template)
	return nil
}

// MockClient records sends for tests.
type MockClient struct {
	SentMessages  []SentMessage
	SentTemplates []SentTemplate
}

type SentMessage struct {
	To   string
	Body string
}

type SentTemplate struct {
	To       string
	Template string
	Vars     map[string]string
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) SendTemplate(ctx context.Context, to string, template string, vars map[string]string) error {
	m.SentTemplates = append(m.SentTemplates, SentTemplate{To: to, Template: template, Vars: vars})
	return nil
}

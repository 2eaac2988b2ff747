// Package messaging defines the transport abstraction for WhatsApp
// conversations and the dispatcher that routes inbound messages through
// the takeover, onboarding and dialogue layers.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/pedidobot/pedidobot/internal/models"
)

// Channel configuration shared by the transport implementations.
const (
	// DefaultChannelBufferSize defines the buffer size for receipt and
	// response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel emits; a full
	// channel drops the event instead of blocking the transport.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned by send operations after Stop.
var ErrServiceStopped = errors.New("messaging service is stopped")

// phoneNumberRegex matches everything that is not a digit, for recipient
// canonicalization.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction. It supports
// sending messages and templates, and provides channels for receipt and
// response events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier. Each transport implements its own rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a free-form message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendTemplate sends a pre-approved message template with variables.
	// Templates work outside the 24-hour session window, which free-form
	// messages do not.
	SendTemplate(ctx context.Context, to string, template string, vars map[string]string) error

	// Start begins any background processing (e.g. event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of incoming customer messages.
	Responses() <-chan models.Response
}

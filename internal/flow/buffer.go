package flow

import (
	"encoding/json"
	"log/slog"

	"github.com/pedidobot/pedidobot/internal/genai"
	"github.com/pedidobot/pedidobot/internal/models"
)

// Buffer payload types. Each waiting state owns exactly one payload type
// and only that state's handler decodes it. A malformed or foreign payload
// decodes to the zero value, which handlers treat as "nothing pending".

// SelectionBuffer carries an in-progress product resolution: the candidate
// list shown to the customer (or the already chosen variant), the quantity
// known so far and the rest of the product queue.
type SelectionBuffer struct {
	Candidates []models.CatalogVariant `json:"candidatos,omitempty"`
	Selected   *models.CatalogVariant  `json:"seleccionado,omitempty"`
	Quantity   int                     `json:"cantidad,omitempty"`
	Pending    []genai.ProductQuery    `json:"pendientes,omitempty"`
}

// AddressBuffer carries the delivery addresses offered for selection.
type AddressBuffer struct {
	Addresses []models.DeliveryAddress `json:"direcciones,omitempty"`
}

// InvoiceBuffer carries the recent invoices offered for selection.
type InvoiceBuffer struct {
	Invoices []models.InvoiceRef `json:"facturas,omitempty"`
}

// DecodeBuffer decodes a stored data buffer into the payload type the
// calling handler owns. Empty or malformed JSON yields the zero value; a
// corrupt buffer must never break a conversation.
func DecodeBuffer[T any](raw string) T {
	var out T
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		slog.Warn("DecodeBuffer: malformed data buffer, treating as empty", "error", err)
		var zero T
		return zero
	}
	return out
}

// EncodeBuffer serializes a buffer payload for storage. Marshal failures
// are logged and yield an empty buffer.
func EncodeBuffer(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("EncodeBuffer: marshal failed", "error", err)
		return ""
	}
	return string(b)
}

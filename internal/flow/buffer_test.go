package flow

import (
	"testing"

	"github.com/pedidobot/pedidobot/internal/genai"
	"github.com/pedidobot/pedidobot/internal/models"
)

func TestBufferRoundTrip(t *testing.T) {
	in := SelectionBuffer{
		Candidates: []models.CatalogVariant{{ID: 1, DisplayName: "Yerba 500g", UnitPrice: 10}},
		Quantity:   3,
		Pending:    []genai.ProductQuery{{Query: "azucar", Quantity: 2}},
	}

	out := DecodeBuffer[SelectionBuffer](EncodeBuffer(in))

	if len(out.Candidates) != 1 || out.Candidates[0].DisplayName != "Yerba 500g" {
		t.Errorf("candidates lost in round trip: %+v", out.Candidates)
	}
	if out.Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", out.Quantity)
	}
	if len(out.Pending) != 1 || out.Pending[0].Query != "azucar" {
		t.Errorf("pending queue lost in round trip: %+v", out.Pending)
	}
}

func TestDecodeBufferMalformed(t *testing.T) {
	for _, raw := range []string{"", "{not json", `"wrong shape"`} {
		out := DecodeBuffer[SelectionBuffer](raw)
		if len(out.Candidates) != 0 || out.Selected != nil || len(out.Pending) != 0 {
			t.Errorf("raw %q: expected zero value, got %+v", raw, out)
		}
	}
}

func TestDecodeBufferForeignPayload(t *testing.T) {
	// A payload written by a different state decodes to the zero value of
	// the requesting state's type, never to garbage.
	raw := EncodeBuffer(AddressBuffer{Addresses: []models.DeliveryAddress{{ID: 1, Label: "Depósito"}}})
	out := DecodeBuffer[SelectionBuffer](raw)
	if len(out.Candidates) != 0 || out.Selected != nil {
		t.Errorf("expected zero SelectionBuffer from foreign payload, got %+v", out)
	}
}

package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/pedidobot/pedidobot/internal/models"
)

func TestAddItemMergesByProduct(t *testing.T) {
	cart := AddItem(nil, 7, 2)
	cart = AddItem(cart, 9, 1)
	cart = AddItem(cart, 7, 3)

	if len(cart) != 2 {
		t.Fatalf("expected 2 lines after merge, got %d", len(cart))
	}
	if cart[0].ProductID != 7 || cart[0].Quantity != 5 {
		t.Errorf("expected merged line 7 x5, got %d x%d", cart[0].ProductID, cart[0].Quantity)
	}
	if cart[1].ProductID != 9 || cart[1].Quantity != 1 {
		t.Errorf("expected line 9 x1, got %d x%d", cart[1].ProductID, cart[1].Quantity)
	}
}

func TestRemoveItem(t *testing.T) {
	cart := []models.CartLine{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 2}, {ProductID: 3, Quantity: 3}}

	got, err := RemoveItem(cart, 2)
	if err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if len(got) != 2 || got[0].ProductID != 1 || got[1].ProductID != 3 {
		t.Errorf("unexpected cart after removal: %+v", got)
	}
}

func TestRemoveItemOutOfRange(t *testing.T) {
	cart := []models.CartLine{{ProductID: 1, Quantity: 1}}

	for _, pos := range []int{0, -1, 2} {
		got, err := RemoveItem(cart, pos)
		if err != ErrCartIndexOutOfRange {
			t.Errorf("position %d: expected ErrCartIndexOutOfRange, got %v", pos, err)
		}
		if len(got) != 1 {
			t.Errorf("position %d: cart changed on invalid index", pos)
		}
	}
}

type mapNamer map[int64]string

func (m mapNamer) VariantName(ctx context.Context, productID int64) (string, bool) {
	name, ok := m[productID]
	return name, ok
}

func TestRenderCartSummary(t *testing.T) {
	cart := []models.CartLine{{ProductID: 1, Quantity: 2}, {ProductID: 99, Quantity: 1}}
	namer := mapNamer{1: "Yerba 1kg"}

	got := RenderCartSummary(context.Background(), cart, namer)

	if !strings.Contains(got, "1. Yerba 1kg x2") {
		t.Errorf("expected resolved line in summary, got %q", got)
	}
	// An unresolvable product keeps its position so removal indexes stay valid.
	if !strings.Contains(got, "2. Producto no encontrado x1") {
		t.Errorf("expected placeholder line in summary, got %q", got)
	}
}

func TestRenderCartSummaryEmpty(t *testing.T) {
	got := RenderCartSummary(context.Background(), nil, mapNamer{})
	if got != MsgEmptyCart {
		t.Errorf("expected empty cart message, got %q", got)
	}
}

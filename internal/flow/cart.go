package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pedidobot/pedidobot/internal/models"
)

// ErrCartIndexOutOfRange is returned by RemoveItem for an invalid 1-based
// index. The cart is left unchanged.
var ErrCartIndexOutOfRange = errors.New("cart index out of range")

// AddItem adds quantity units of a product to the cart. If a line for the
// product already exists the quantities merge; the cart never holds two
// lines for the same product.
func AddItem(cart []models.CartLine, productID int64, quantity int) []models.CartLine {
	for i, line := range cart {
		if line.ProductID == productID {
			cart[i].Quantity += quantity
			return cart
		}
	}
	return append(cart, models.CartLine{ProductID: productID, Quantity: quantity})
}

// RemoveItem removes the line at the given 1-based position. On an invalid
// index it returns the cart unchanged along with ErrCartIndexOutOfRange.
func RemoveItem(cart []models.CartLine, position int) ([]models.CartLine, error) {
	if position < 1 || position > len(cart) {
		return cart, ErrCartIndexOutOfRange
	}
	i := position - 1
	return append(cart[:i:i], cart[i+1:]...), nil
}

// variantNamer resolves product ids to display names for cart rendering.
// Satisfied by erp.CatalogService via the engine's variant cache and by
// test fakes.
type variantNamer interface {
	VariantName(ctx context.Context, productID int64) (string, bool)
}

// RenderCartSummary formats the cart as a numbered list. Lines whose
// product can no longer be resolved render with a placeholder name so the
// position numbering stays stable for removal.
func RenderCartSummary(ctx context.Context, cart []models.CartLine, namer variantNamer) string {
	if len(cart) == 0 {
		return MsgEmptyCart
	}
	var sb strings.Builder
	sb.WriteString("Tu pedido:\n")
	for i, line := range cart {
		name, ok := namer.VariantName(ctx, line.ProductID)
		if !ok {
			name = "Producto no encontrado"
		}
		fmt.Fprintf(&sb, "%d. %s x%d\n", i+1, name, line.Quantity)
	}
	return strings.TrimRight(sb.String(), "\n")
}

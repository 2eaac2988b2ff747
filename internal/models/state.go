package models

// StateType identifies a waiting state in the dialogue state machine.
// The set is closed: handlers are registered in a static dispatch table and
// an unknown value stored in memory is treated as no active flow.
type StateType string

// Ordering flow states.
const (
	StateAwaitingProductSelection StateType = "esperando_seleccion_producto"
	StateAwaitingQuantity         StateType = "esperando_cantidad_producto"
	StateAwaitingStockConfirm     StateType = "esperando_confirmacion_stock"
	StateAwaitingOrderConfirm     StateType = "esperando_confirmacion_pedido"
	StateAwaitingRemoveSelection  StateType = "esperando_seleccion_eliminar"
	StateAwaitingAddressSelection StateType = "esperando_seleccion_direccion"
	StateAwaitingInvoiceChoice    StateType = "esperando_seleccion_o_numero_factura"
	StateAwaitingInvoiceNumber    StateType = "esperando_numero_factura"
)

// Onboarding states. These are owned by the onboarding gate, not the
// dialogue engine, and always run before any ordering flow.
const (
	StateAwaitingName         StateType = "esperando_nombre"
	StateAwaitingEmail        StateType = "esperando_email"
	StateAwaitingCustomerType StateType = "esperando_tipo_cliente"
)

var validStates = map[StateType]bool{
	StateAwaitingProductSelection: true,
	StateAwaitingQuantity:         true,
	StateAwaitingStockConfirm:     true,
	StateAwaitingOrderConfirm:     true,
	StateAwaitingRemoveSelection:  true,
	StateAwaitingAddressSelection: true,
	StateAwaitingInvoiceChoice:    true,
	StateAwaitingInvoiceNumber:    true,
	StateAwaitingName:             true,
	StateAwaitingEmail:            true,
	StateAwaitingCustomerType:     true,
}

// IsValidState reports whether s is a known dialogue or onboarding state.
func IsValidState(s StateType) bool {
	return validStates[s]
}

// IsOnboardingState reports whether s belongs to the onboarding gate.
func IsOnboardingState(s StateType) bool {
	switch s {
	case StateAwaitingName, StateAwaitingEmail, StateAwaitingCustomerType:
		return true
	}
	return false
}

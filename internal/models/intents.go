package models

// Intent labels produced by the message classifier. The classifier is
// instructed to answer with exactly one of these strings; anything else,
// including classifier failures, collapses to IntentOther.
const (
	IntentCreateOrder    = "crear_pedido"
	IntentModifyOrder    = "modificar_pedido"
	IntentProductQuery   = "consulta_producto"
	IntentRequestInvoice = "solicitar_factura"
	IntentGreeting       = "saludo"
	IntentClosing        = "agradecimiento_cierre"
	IntentOther          = "otro"
)

// Sub-intent labels used while a product selection is pending.
const (
	SubIntentSelectProduct   = "seleccionar_producto"
	SubIntentNewQuery        = "nueva_consulta"
	SubIntentCancelSelection = "cancelar_seleccion"
)

// Labels used to re-classify a reply to the order confirmation question.
const (
	ConfirmFinalize = "finalizar_pedido"
	ConfirmModify   = "modificar_pedido"
	ConfirmOther    = "otro"
)

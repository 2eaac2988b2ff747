package flow

// Fixed customer-facing texts. Formatted variants take their arguments via
// fmt.Sprintf at the call site.
const (
	MsgFallback = "Disculpá, tuvimos un inconveniente técnico. Por favor intentá de nuevo en unos minutos."

	MsgEmptyCart = "Tu pedido está vacío."

	// Onboarding.
	MsgAskName             = "¡Bienvenido! Para comenzar, ¿me decís tu nombre completo?"
	MsgAskEmail            = "Gracias. ¿Cuál es tu correo electrónico?"
	MsgInvalidEmail        = "Ese correo no parece válido. Probá de nuevo (por ejemplo: nombre@dominio.com)."
	MsgAskCustomerType     = "¿Qué tipo de cliente sos?\n1. Consumidor Final\n2. Empresa / Institución\n3. Mayorista"
	MsgInvalidCustomerType = "No entendí la opción. Respondé 1, 2 o 3."
	MsgOnboardingDone      = "¡Listo! Ya completamos tus datos. ¿En qué puedo ayudarte?"

	// Ordering.
	MsgAskQuantityFmt      = "¿Cuántas unidades de %s querés?"
	MsgInvalidQuantity     = "Necesito una cantidad mayor a cero. ¿Cuántas unidades querés?"
	MsgItemAddedFmt        = "Agregué %d x %s al pedido."
	MsgStockShortFmt       = "De %s solo tenemos %d unidades disponibles. ¿Querés llevar esa cantidad?"
	MsgInvalidStockConfirm = "No te entendí. Respondé \"sí\" para llevar esa cantidad o \"no\" para dejar el producto afuera."
	MsgProductSkippedFmt   = "Entendido, dejamos %s afuera del pedido."
	MsgChooseVariantFmt    = "Encontré varias opciones:\n%s\nRespondé con el número de la opción."
	MsgChooseVariantRetry  = "Respondé con el número de la opción de la lista."
	MsgSelectionCancelled  = "Listo, cancelé la selección. ¿Te ayudo con algo más?"
	MsgConfirmOrder        = "¿Confirmás el pedido? Respondé \"sí\" para confirmar o decime qué querés modificar."
	MsgOrderCreatedFmt     = "¡Pedido confirmado! Nº %s por un total de $%.2f. Gracias por tu compra."
	MsgNoActiveOrder       = "No tenés un pedido en curso. Decime qué productos querés y lo armamos."

	// Cart editing.
	MsgWhichRemove        = "Indicame el número del producto que querés eliminar."
	MsgInvalidRemoveIndex = "Ese número no corresponde a ningún producto del pedido."
	MsgRemoveCancelled    = "Listo, no eliminamos nada. ¿Confirmás el pedido? Respondé \"sí\" para confirmar o decime qué querés modificar."

	// Addresses.
	MsgChooseAddressFmt = "¿A qué dirección enviamos el pedido?\n%s\nRespondé con el número de la lista."
	MsgInvalidAddress   = "No encontré esa dirección. Respondé con el número de la lista."

	// Invoices.
	MsgInvoiceListFmt      = "Estas son tus últimas facturas:\n%s\nRespondé con el número de la lista o escribí el número de factura."
	MsgInvoiceNotFoundList = "No encontré esa factura. Respondé con el número de la lista o escribí el número exacto de la factura."
	MsgAskInvoiceNumber    = "¿Cuál es el número de la factura que necesitás?"
	MsgInvoiceNotFound     = "No encontré una factura con ese número. Verificalo y volvé a intentar."
	MsgInvoiceSentFmt      = "Te envié la factura %s."
	MsgInvoiceCancelled    = "Listo, cancelé la búsqueda de facturas. ¿Te ayudo con algo más?"

	// Takeover and lead verification.
	MsgLeadPaused = "¡Gracias por escribirnos! Un asesor comercial se va a contactar con vos a la brevedad."

	// Walk-in consumer fast path.
	MsgWebStoreRedirectFmt = "Podés hacer tu pedido directamente en nuestra tienda online: %s"
	MsgB2CInvoice          = "Para solicitar tu factura, escribinos a administración y te la enviamos a la brevedad."

	// Fixed fallbacks for AI-generated replies.
	MsgGreetingFallback    = "¡Hola! ¿En qué puedo ayudarte hoy?"
	MsgClosingFallback     = "¡Gracias a vos! Que tengas un buen día."
	MsgFAQFallback         = "Puedo ayudarte a hacer pedidos, consultar productos o solicitar facturas. ¿Qué necesitás?"
	MsgWhatToOrder         = "¡Perfecto! ¿Qué productos querés pedir?"
	MsgProductInfoFallback = "Encontré el producto, pero no pude armar la respuesta. ¿Querés que te pase el precio?"
)

// TemplateInvoiceDelivery is the messaging template used to deliver an
// invoice document. The single variable is the invoice number.
const TemplateInvoiceDelivery = "envio_factura"

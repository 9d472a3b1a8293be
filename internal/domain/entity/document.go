package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de vida de un DTE. El flujo normal es
// CREATED → ENCODED → SEALED → SIGNED → PENDING_SUBMIT → SENT → ACCEPTED|REJECTED.
// ERROR es alcanzable desde PENDING_SUBMIT y SENT ante cualquier fallo
// recuperable; el scheduler lo devuelve a PENDING_SUBMIT en el siguiente
// ciclo. CANCELLED es una acción explícita del operador y es terminal.
const (
	StatusCreated       = "CREATED"        // Folio asignado, documento aún sin codificar
	StatusEncoded       = "ENCODED"        // XML canónico generado
	StatusSealed        = "SEALED"         // TED calculado y firmado con la llave del CAF
	StatusSigned        = "SIGNED"         // Firma electrónica del emisor inyectada
	StatusPendingSubmit = "PENDING_SUBMIT" // En cola, esperando la ventana de retención
	StatusSent          = "SENT"           // Recibido por el SII, TrackID asignado
	StatusAccepted      = "ACCEPTED"       // Aceptado por el SII (terminal)
	StatusRejected      = "REJECTED"       // Rechazado por el SII (terminal; el folio no se reutiliza)
	StatusError         = "ERROR"          // Fallo recuperable; el scheduler reintenta
	StatusCancelled     = "CANCELLED"      // Cancelado por el operador (terminal)
)

// transitions es la tabla de transiciones permitidas. Separada del scheduler
// para poder probarla sin timers ni red.
var transitions = map[string][]string{
	StatusCreated:       {StatusEncoded, StatusCancelled},
	StatusEncoded:       {StatusSealed, StatusCancelled},
	StatusSealed:        {StatusSigned, StatusCancelled},
	StatusSigned:        {StatusPendingSubmit, StatusCancelled},
	StatusPendingSubmit: {StatusSent, StatusError, StatusCancelled},
	StatusSent:          {StatusAccepted, StatusRejected, StatusError},
	StatusError:         {StatusPendingSubmit, StatusCancelled},
	StatusAccepted:      {},
	StatusRejected:      {},
	StatusCancelled:     {},
}

// CanTransition indica si el paso from → to está permitido.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus indica si el estado no admite más transiciones.
func IsTerminalStatus(status string) bool {
	return len(transitions[status]) == 0
}

// Receiver es el bloque de identidad del receptor. Es opcional: las boletas
// (tipo 39) admiten receptor anónimo y en ese caso el bloque se omite
// completo del XML, no se emite con campos vacíos.
type Receiver struct {
	RUT         string
	RazonSocial string
	Giro        string
	Direccion   string
	Comuna      string
}

// Reference es la referencia cruzada a otro DTE (ej: nota de crédito que
// anula una factura rechazada, o reemisión corregida).
type Reference struct {
	DTEType int
	Folio   int64
	Date    time.Time
	Reason  string
}

// Document representa un DTE: cabecera, receptor opcional, totales y el
// contenido codificado/firmado. El folio se asigna exactamente una vez y no
// se reasigna aunque el envío falle después.
type Document struct {
	ID        string
	CompanyID string
	DTEType   int
	Folio     int64
	IssueDate time.Time
	SaleAt    time.Time // Momento de la venta; ancla de la ventana de retención

	Receiver  *Receiver  // nil = receptor anónimo (solo tipos que lo permiten)
	Reference *Reference // nil = sin referencia cruzada

	// Totales en pesos (enteros). Invariante: Total = Net + Tax + Exempt.
	NetTotal    decimal.Decimal
	TaxTotal    decimal.Decimal
	ExemptTotal decimal.Decimal
	GrandTotal  decimal.Decimal

	Status     string
	XMLEncoded string // XML canónico sin firma (reproducible)
	XMLSigned  string // Envelope con TED y firma del emisor
	TrackID    string // Identificador de seguimiento entregado por el SII
	LastError  string // Último error, visible para el operador

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AnonymousReceiverAllowed indica si el tipo de DTE admite receptor anónimo.
// Solo las boletas; los demás tipos exigen identificar al receptor.
func AnonymousReceiverAllowed(dteType int) bool {
	return dteType == 39 || dteType == 41
}

// DocumentItem es una línea del documento. LineNumber es denso y parte en 1,
// en el orden en que la venta entregó los ítems.
type DocumentItem struct {
	ID          string
	DocumentID  string
	LineNumber  int
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	Exempt      bool
	LineTotal   decimal.Decimal
}

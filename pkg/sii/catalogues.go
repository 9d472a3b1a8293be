// Package sii contiene catálogos, límites de campo y validaciones alineados
// al formato de Documentos Tributarios Electrónicos del SII (Chile).
package sii

// =============================================================================
// Tipos de DTE (tabla de tipos de documento del SII)
// =============================================================================

const (
	DTEFacturaAfecta   = 33 // Factura electrónica afecta a IVA
	DTEFacturaExenta   = 34 // Factura electrónica exenta
	DTEBoleta          = 39 // Boleta electrónica (admite receptor anónimo)
	DTEBoletaExenta    = 41 // Boleta electrónica exenta
	DTENotaDebito      = 56 // Nota de débito electrónica
	DTENotaCredito     = 61 // Nota de crédito electrónica
	DTEGuiaDespacho    = 52 // Guía de despacho electrónica
)

// ValidDTETypes tipos soportados por este emisor.
var ValidDTETypes = map[int]bool{
	DTEFacturaAfecta: true, DTEFacturaExenta: true,
	DTEBoleta: true, DTEBoletaExenta: true,
	DTENotaDebito: true, DTENotaCredito: true,
	DTEGuiaDespacho: true,
}

// TaxRatePercent es la tasa de IVA vigente (porcentaje).
const TaxRatePercent = 19

// =============================================================================
// Estados de respuesta del SII (consulta de estado de envío)
// =============================================================================

const (
	EstadoRecibido   = "REC" // Envío recibido, aún sin procesar
	EstadoEnProceso  = "EPR" // En proceso de validación
	EstadoOK         = "SOK" // Esquema validado, en cola
	EstadoCaratulaOK = "CRT" // Carátula validada
	EstadoAceptado   = "ACP" // Aceptado (terminal)
	EstadoReparo     = "RPR" // Aceptado con reparos (terminal, cuenta como aceptado)
	EstadoRechazado  = "RCH" // Rechazado (terminal; el folio no se reemite)
)

// EstadoTerminalAceptado indica si el código de estado es terminal y aceptado.
func EstadoTerminalAceptado(code string) bool {
	return code == EstadoAceptado || code == EstadoReparo
}

// EstadoTerminalRechazado indica si el código de estado es terminal y rechazado.
func EstadoTerminalRechazado(code string) bool {
	return code == EstadoRechazado
}

// =============================================================================
// Límites de largo de campo del documento (formato DTE). La codificación
// trunca determinísticamente en el límite de runas; nunca descarta el campo.
// =============================================================================

const (
	MaxLenRazonSocial = 100 // RznSoc / RznSocRecep
	MaxLenGiro        = 80  // GiroEmis / GiroRecep
	MaxLenDireccion   = 70  // DirOrigen / DirRecep
	MaxLenComuna      = 20  // CmnaOrigen / CmnaRecep
	MaxLenItemName    = 80  // NmbItem
	MaxLenItemDesc    = 1000
	MaxLenRefReason   = 90 // RazonRef
)

// =============================================================================
// Límites propios del TED (timbre): más cortos que los del documento.
// =============================================================================

const (
	TEDMaxLenRazonSocial = 40 // RSR: razón social del receptor en el timbre
	TEDMaxLenItemName    = 40 // IT1: descripción del primer ítem en el timbre
)

// TruncateField corta s al límite de runas indicado, de forma determinista y
// sin error. Campos más cortos pasan intactos.
func TruncateField(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

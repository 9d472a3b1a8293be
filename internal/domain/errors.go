package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")

	// Errores del ciclo DTE. Los tres primeros son fatales para el documento
	// (requieren intervención del operador); los dos últimos los reintenta el
	// scheduler en el siguiente ciclo.
	ErrNoFolioAvailable     = errors.New("no hay folios disponibles para el tipo de documento")
	ErrFolioRangeExpired    = errors.New("el rango de folios autorizado está vencido")
	ErrSigningKeyMissing    = errors.New("certificado o llave de firma no disponible")
	ErrAuthenticationFailed = errors.New("autenticación con el SII fallida")
	ErrSubmissionTransient  = errors.New("fallo transitorio al comunicarse con el SII")
)

// IsRetryable indica si un error permite reintento automático por el
// scheduler. Agotamiento de folios, configuración y validación no se
// reintentan nunca; red y autenticación sí.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSubmissionTransient) || errors.Is(err, ErrAuthenticationFailed)
}

package entity

import "time"

// FolioRange representa un rango de folios autorizado por el SII (CAF) para
// una empresa y un tipo de DTE. Invariante: FolioFrom <= NextFolio <= FolioTo+1;
// cuando NextFolio == FolioTo+1 el rango está agotado y no se reutiliza jamás.
//
// Solo la asignación de folios muta NextFolio, siempre vía actualización
// optimista (Version). Los rangos se cargan desde el XML del CAF y nunca se
// borran; se agotan o vencen.
type FolioRange struct {
	ID           string
	CompanyID    string
	DTEType      int       // Tipo de DTE (33, 34, 39, 61, ...)
	FolioFrom    int64
	FolioTo      int64
	NextFolio    int64
	AuthorizedAt time.Time // Fecha de autorización del CAF (FA)
	ExpiresAt    time.Time // Vencimiento del CAF (6 meses desde FA para boletas; según norma)
	CAFXML       string    // CAF completo tal como lo entregó el SII (incluye llave RSA del rango)
	Version      int64     // Lock optimista para la asignación concurrente
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Exhausted indica si el rango ya entregó todos sus folios.
func (fr *FolioRange) Exhausted() bool {
	return fr.NextFolio > fr.FolioTo
}

// Expired indica si el CAF está vencido a la fecha dada.
func (fr *FolioRange) Expired(now time.Time) bool {
	return !fr.ExpiresAt.IsZero() && now.After(fr.ExpiresAt)
}

// Remaining devuelve cuántos folios quedan por asignar.
func (fr *FolioRange) Remaining() int64 {
	if fr.Exhausted() {
		return 0
	}
	return fr.FolioTo - fr.NextFolio + 1
}

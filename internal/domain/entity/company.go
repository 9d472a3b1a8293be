package entity

import "time"

// Company representa al contribuyente emisor (tenant). Cada empresa tiene su
// propio certificado digital y su propia ventana de retención antes del envío
// al SII (SubmitDelaySecs), configurable por empresa.
type Company struct {
	ID           string
	RUT          string // RUT del emisor con dígito verificador (ej: "76543210-K")
	RazonSocial  string
	Giro         string
	Direccion    string
	Comuna       string
	CertPath     string // Ruta al certificado .p12/.pfx o .pem del emisor
	CertKeyPath  string // Llave privada .pem (si CertPath es solo el certificado)
	CertPassword string // Contraseña del .p12

	// SubmitDelaySecs es la ventana de retención: segundos que deben pasar
	// desde la creación de la venta antes de que el documento sea elegible
	// para envío (permite correcciones de último minuto). 0 = sin retención.
	SubmitDelaySecs int

	CreatedAt time.Time
	UpdatedAt time.Time
}

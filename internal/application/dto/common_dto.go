package dto

// ErrorResponse cuerpo de error estándar de la API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListDocumentsResponse respuesta paginada de documentos.
type ListDocumentsResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Total     int                `json:"total"`
}

// AttemptResponse intento de envío en la bitácora de un documento.
type AttemptResponse struct {
	AttemptedAt string `json:"attempted_at"`
	Outcome     string `json:"outcome"` // SENT | FAILED
	TrackID     string `json:"track_id,omitempty"`
	StatusCode  string `json:"status_code,omitempty"`
	Message     string `json:"message,omitempty"`
}

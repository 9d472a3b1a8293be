package entity

import "time"

// Resultados posibles de un intento de envío.
const (
	AttemptOutcomeSent   = "SENT"
	AttemptOutcomeFailed = "FAILED"
)

// SubmissionAttempt es una fila de auditoría por cada intento de envío al
// SII. Solo se insertan, nunca se modifican; un documento puede tener cero o
// más intentos.
type SubmissionAttempt struct {
	ID          string
	DocumentID  string
	AttemptedAt time.Time
	Outcome     string
	TrackID     string
	StatusCode  string
	Message     string
}

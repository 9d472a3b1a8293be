package emission

import (
	"context"

	"github.com/jhoicas/dte-core/internal/domain/entity"
	infrasii "github.com/jhoicas/dte-core/internal/infrastructure/sii"
)

// Submitter es el puerto de salida hacia el SII. La implementación real hace
// HTTP multipart con token de sesión; para desarrollo existe un mock que no
// toca la red, y los tests inyectan fakes.
type Submitter interface {
	// Submit sube el documento firmado y devuelve el TrackID asignado.
	Submit(ctx context.Context, company *entity.Company, doc *entity.Document) (string, error)
	// QueryStatus consulta el estado del envío identificado por trackID.
	QueryStatus(ctx context.Context, company *entity.Company, trackID string) (*infrasii.StatusResponse, error)
}

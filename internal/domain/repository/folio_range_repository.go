package repository

import (
	"context"
	"time"

	"github.com/jhoicas/dte-core/internal/domain/entity"
)

// FolioRangeRepository puerto de persistencia para rangos de folios (CAF).
// La asignación de folios exige actualización optimista durable: múltiples
// instancias del servicio pueden asignar concurrentemente y el contador vive
// en la base, no en memoria.
type FolioRangeRepository interface {
	Create(ctx context.Context, fr *entity.FolioRange) error
	GetByID(ctx context.Context, id string) (*entity.FolioRange, error)
	ListByCompany(ctx context.Context, companyID string) ([]*entity.FolioRange, error)

	// FindOpenRange devuelve el rango con capacidad más antiguo por fecha de
	// autorización (desempate por vencimiento) para (empresa, tipo DTE), o
	// nil si no existe ninguno con capacidad. hasExpired indica si existía
	// al menos un rango con capacidad pero vencido a la fecha dada, para
	// distinguir ErrFolioRangeExpired de ErrNoFolioAvailable.
	FindOpenRange(ctx context.Context, companyID string, dteType int, now time.Time) (fr *entity.FolioRange, hasExpired bool, err error)

	// AdvanceNextFolio incrementa NextFolio en 1 solo si la versión
	// coincide (compare-and-swap). Retorna false si otro escritor ganó la
	// carrera; el caller debe releer el rango y reintentar.
	AdvanceNextFolio(ctx context.Context, id string, expectedVersion int64) (bool, error)
}

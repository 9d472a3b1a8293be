// Asignación de folios con control optimista de concurrencia. El folio se
// consume con un CAS sobre la versión del rango: dos asignaciones simultáneas
// jamás obtienen el mismo número, y un folio consumido no vuelve al pozo
// aunque el envío posterior falle.

package folio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
	"github.com/jhoicas/dte-core/internal/domain/repository"
)

// maxCASRetries acota los reintentos bajo contención. Cada derrota del CAS
// significa que otro proceso avanzó el contador; releer y volver a intentar.
const maxCASRetries = 5

// Allocator entrega el siguiente folio disponible para un emisor y tipo de
// documento, agotando los rangos en orden de autorización.
type Allocator struct {
	folioRepo repository.FolioRangeRepository
	log       zerolog.Logger
	now       func() time.Time
}

// NewAllocator construye el asignador.
func NewAllocator(folioRepo repository.FolioRangeRepository, log zerolog.Logger) *Allocator {
	return &Allocator{
		folioRepo: folioRepo,
		log:       log,
		now:       time.Now,
	}
}

// Allocate consume y devuelve el siguiente folio del rango abierto más
// antiguo. Sin rango con folios disponibles devuelve ErrNoFolioAvailable, o
// ErrFolioRangeExpired si lo único que queda son rangos vencidos.
func (a *Allocator) Allocate(ctx context.Context, companyID string, dteType int) (*entity.FolioRange, int64, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		fr, hasExpired, err := a.folioRepo.FindOpenRange(ctx, companyID, dteType, a.now())
		if err != nil {
			return nil, 0, fmt.Errorf("folio: buscar rango abierto: %w", err)
		}
		if fr == nil {
			if hasExpired {
				return nil, 0, domain.ErrFolioRangeExpired
			}
			return nil, 0, domain.ErrNoFolioAvailable
		}

		folio := fr.NextFolio
		advanced, err := a.folioRepo.AdvanceNextFolio(ctx, fr.ID, fr.Version)
		if err != nil {
			return nil, 0, fmt.Errorf("folio: avanzar contador: %w", err)
		}
		if !advanced {
			// Otro proceso ganó el CAS; releer el rango y reintentar.
			a.log.Debug().
				Str("range_id", fr.ID).
				Int("attempt", attempt+1).
				Msg("contención en asignación de folio, reintentando")
			continue
		}

		a.log.Info().
			Str("company_id", companyID).
			Int("dte_type", dteType).
			Int64("folio", folio).
			Int64("remaining", fr.FolioTo-folio).
			Msg("folio asignado")
		return fr, folio, nil
	}
	return nil, 0, fmt.Errorf("folio: contención persistente tras %d intentos", maxCASRetries)
}

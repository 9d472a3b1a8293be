package folio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/dte-core/internal/domain/entity"
	"github.com/jhoicas/dte-core/internal/domain/repository"
	infrasii "github.com/jhoicas/dte-core/internal/infrastructure/sii"
	pkgsii "github.com/jhoicas/dte-core/pkg/sii"
)

// Loader registra autorizaciones de folios (CAF) para un emisor.
type Loader struct {
	folioRepo   repository.FolioRangeRepository
	companyRepo repository.CompanyRepository
	log         zerolog.Logger
}

// NewLoader construye el cargador de CAF.
func NewLoader(folioRepo repository.FolioRangeRepository, companyRepo repository.CompanyRepository, log zerolog.Logger) *Loader {
	return &Loader{folioRepo: folioRepo, companyRepo: companyRepo, log: log}
}

// Load parsea y persiste un CAF para el emisor. El RUT del CAF debe coincidir
// con el del emisor; un CAF ajeno se rechaza antes de tocar la base.
func (l *Loader) Load(ctx context.Context, companyID string, raw []byte) (*entity.FolioRange, error) {
	company, err := l.companyRepo.GetByID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("folio: emisor %s: %w", companyID, err)
	}

	data, err := infrasii.ParseCAF(raw)
	if err != nil {
		return nil, err
	}
	if !sameRUT(data.IssuerRUT, company.RUT) {
		return nil, fmt.Errorf("folio: el CAF pertenece a %s, no al emisor %s", data.IssuerRUT, company.RUT)
	}
	if !pkgsii.ValidDTETypes[data.DTEType] {
		return nil, fmt.Errorf("folio: tipo de DTE %d no soportado", data.DTEType)
	}
	if !data.ExpiresAt.IsZero() && !time.Now().Before(data.ExpiresAt) {
		return nil, fmt.Errorf("folio: el CAF venció el %s", data.ExpiresAt.Format("2006-01-02"))
	}

	fr := data.ToFolioRange(companyID, raw)
	if err := l.folioRepo.Create(ctx, fr); err != nil {
		return nil, fmt.Errorf("folio: persistir rango: %w", err)
	}

	l.log.Info().
		Str("company_id", companyID).
		Int("dte_type", data.DTEType).
		Int64("from", data.FolioFrom).
		Int64("to", data.FolioTo).
		Time("expires_at", data.ExpiresAt).
		Msg("CAF cargado")
	return fr, nil
}

// ListRanges devuelve los rangos cargados del emisor, agotados y vencidos
// incluidos: el operador necesita ver cuánta capacidad queda por tipo.
func (l *Loader) ListRanges(ctx context.Context, companyID string) ([]*entity.FolioRange, error) {
	if _, err := l.companyRepo.GetByID(ctx, companyID); err != nil {
		return nil, fmt.Errorf("folio: emisor %s: %w", companyID, err)
	}
	return l.folioRepo.ListByCompany(ctx, companyID)
}

func sameRUT(a, b string) bool {
	na, errA := pkgsii.NormalizeRUT(a)
	nb, errB := pkgsii.NormalizeRUT(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return na == nb
}

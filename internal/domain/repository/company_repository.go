package repository

import (
	"context"

	"github.com/jhoicas/dte-core/internal/domain/entity"
)

// CompanyRepository puerto de persistencia para emisores (tenants).
type CompanyRepository interface {
	Create(ctx context.Context, company *entity.Company) error
	GetByID(ctx context.Context, id string) (*entity.Company, error)
	List(ctx context.Context) ([]*entity.Company, error)
	Update(ctx context.Context, company *entity.Company) error
	// GetSubmitDelaySecs lee solo la ventana de retención; la consulta el
	// scheduler con cacheo corto para no golpear la tabla en cada ciclo.
	GetSubmitDelaySecs(ctx context.Context, id string) (int, error)
}

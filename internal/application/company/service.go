package company

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/dte-core/internal/application/dto"
	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
	"github.com/jhoicas/dte-core/internal/domain/repository"
	pkgsii "github.com/jhoicas/dte-core/pkg/sii"
)

// Service aplica las reglas de negocio para emisores (tenants).
type Service struct {
	repo repository.CompanyRepository
}

// NewService construye el caso de uso con el puerto de persistencia.
func NewService(repo repository.CompanyRepository) *Service {
	return &Service{repo: repo}
}

// Create registra un emisor nuevo. El RUT debe tener dígito verificador
// válido; el constraint único de la base rechaza RUT repetidos.
func (s *Service) Create(ctx context.Context, in *dto.CreateCompanyRequest) (*dto.CompanyResponse, error) {
	rut, err := pkgsii.NormalizeRUT(in.RUT)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if in.RazonSocial == "" {
		return nil, fmt.Errorf("%w: falta razon_social", domain.ErrInvalidInput)
	}
	if in.SubmitDelaySecs < 0 {
		return nil, fmt.Errorf("%w: submit_delay_secs no puede ser negativo", domain.ErrInvalidInput)
	}
	now := time.Now()
	company := &entity.Company{
		ID:              uuid.New().String(),
		RUT:             rut,
		RazonSocial:     in.RazonSocial,
		Giro:            in.Giro,
		Direccion:       in.Direccion,
		Comuna:          in.Comuna,
		CertPath:        in.CertPath,
		CertKeyPath:     in.CertKeyPath,
		CertPassword:    in.CertPassword,
		SubmitDelaySecs: in.SubmitDelaySecs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, company); err != nil {
		return nil, err
	}
	return toResponse(company), nil
}

// Get obtiene un emisor por ID.
func (s *Service) Get(ctx context.Context, id string) (*dto.CompanyResponse, error) {
	company, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(company), nil
}

// List lista todos los emisores registrados.
func (s *Service) List(ctx context.Context) ([]dto.CompanyResponse, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.CompanyResponse, 0, len(list))
	for _, c := range list {
		out = append(out, *toResponse(c))
	}
	return out, nil
}

// Update modifica los datos mutables del emisor (el RUT no cambia).
func (s *Service) Update(ctx context.Context, id string, in *dto.CreateCompanyRequest) (*dto.CompanyResponse, error) {
	company, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.SubmitDelaySecs < 0 {
		return nil, fmt.Errorf("%w: submit_delay_secs no puede ser negativo", domain.ErrInvalidInput)
	}
	if in.RazonSocial != "" {
		company.RazonSocial = in.RazonSocial
	}
	if in.Giro != "" {
		company.Giro = in.Giro
	}
	if in.Direccion != "" {
		company.Direccion = in.Direccion
	}
	if in.Comuna != "" {
		company.Comuna = in.Comuna
	}
	if in.CertPath != "" {
		company.CertPath = in.CertPath
	}
	if in.CertKeyPath != "" {
		company.CertKeyPath = in.CertKeyPath
	}
	if in.CertPassword != "" {
		company.CertPassword = in.CertPassword
	}
	company.SubmitDelaySecs = in.SubmitDelaySecs
	company.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, company); err != nil {
		return nil, err
	}
	return toResponse(company), nil
}

func toResponse(c *entity.Company) *dto.CompanyResponse {
	if c == nil {
		return nil
	}
	return &dto.CompanyResponse{
		ID:              c.ID,
		RUT:             c.RUT,
		RazonSocial:     c.RazonSocial,
		Giro:            c.Giro,
		Direccion:       c.Direccion,
		Comuna:          c.Comuna,
		SubmitDelaySecs: c.SubmitDelaySecs,
	}
}

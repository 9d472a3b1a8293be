package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
	"github.com/jhoicas/dte-core/internal/domain/repository"
)

var _ repository.CompanyRepository = (*CompanyRepo)(nil)

// CompanyRepo implementa CompanyRepository sobre PostgreSQL.
type CompanyRepo struct {
	pool *pgxpool.Pool
}

// NewCompanyRepository construye el repositorio.
func NewCompanyRepository(pool *pgxpool.Pool) *CompanyRepo {
	return &CompanyRepo{pool: pool}
}

func (r *CompanyRepo) Create(ctx context.Context, company *entity.Company) error {
	const q = `
		INSERT INTO companies
			(id, rut, razon_social, giro, direccion, comuna,
			 cert_path, cert_key_path, cert_password, submit_delay_secs,
			 created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())`
	_, err := r.pool.Exec(ctx, q,
		company.ID, company.RUT, company.RazonSocial, company.Giro,
		company.Direccion, company.Comuna,
		company.CertPath, company.CertKeyPath, company.CertPassword,
		company.SubmitDelaySecs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: RUT %s ya registrado", domain.ErrDuplicate, company.RUT)
		}
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

func (r *CompanyRepo) GetByID(ctx context.Context, id string) (*entity.Company, error) {
	const q = `
		SELECT id, rut, razon_social, giro, direccion, comuna,
		       cert_path, cert_key_path, cert_password, submit_delay_secs,
		       created_at, updated_at
		FROM companies WHERE id = $1`
	company, err := scanCompany(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get company by id: %w", err)
	}
	return company, nil
}

func (r *CompanyRepo) List(ctx context.Context) ([]*entity.Company, error) {
	const q = `
		SELECT id, rut, razon_social, giro, direccion, comuna,
		       cert_path, cert_key_path, cert_password, submit_delay_secs,
		       created_at, updated_at
		FROM companies
		ORDER BY razon_social`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()
	var list []*entity.Company
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		list = append(list, company)
	}
	return list, rows.Err()
}

func (r *CompanyRepo) Update(ctx context.Context, company *entity.Company) error {
	const q = `
		UPDATE companies
		SET razon_social = $2, giro = $3, direccion = $4, comuna = $5,
		    cert_path = $6, cert_key_path = $7, cert_password = $8,
		    submit_delay_secs = $9, updated_at = now()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q,
		company.ID, company.RazonSocial, company.Giro,
		company.Direccion, company.Comuna,
		company.CertPath, company.CertKeyPath, company.CertPassword,
		company.SubmitDelaySecs,
	)
	if err != nil {
		return fmt.Errorf("update company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetSubmitDelaySecs lee solo la ventana de retención, sin traer la fila
// completa; el scheduler la consulta en cada ciclo (con cacheo corto).
func (r *CompanyRepo) GetSubmitDelaySecs(ctx context.Context, id string) (int, error) {
	const q = `SELECT submit_delay_secs FROM companies WHERE id = $1`
	var secs int
	if err := r.pool.QueryRow(ctx, q, id).Scan(&secs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("get submit_delay_secs: %w", err)
	}
	return secs, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func scanCompany(row pgx.Row) (*entity.Company, error) {
	var c entity.Company
	err := row.Scan(
		&c.ID, &c.RUT, &c.RazonSocial, &c.Giro, &c.Direccion, &c.Comuna,
		&c.CertPath, &c.CertKeyPath, &c.CertPassword, &c.SubmitDelaySecs,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

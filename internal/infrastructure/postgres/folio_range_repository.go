package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
	"github.com/jhoicas/dte-core/internal/domain/repository"
)

var _ repository.FolioRangeRepository = (*FolioRangeRepo)(nil)

// FolioRangeRepo implementa FolioRangeRepository sobre PostgreSQL. El
// contador next_folio solo avanza vía AdvanceNextFolio con lock optimista
// (columna version): el punto de serialización de la asignación de folios es
// la base, no la memoria de una instancia.
type FolioRangeRepo struct {
	pool *pgxpool.Pool
}

// NewFolioRangeRepository construye el repositorio.
func NewFolioRangeRepository(pool *pgxpool.Pool) *FolioRangeRepo {
	return &FolioRangeRepo{pool: pool}
}

func (r *FolioRangeRepo) Create(ctx context.Context, fr *entity.FolioRange) error {
	const q = `
		INSERT INTO folio_ranges
			(id, company_id, dte_type, folio_from, folio_to, next_folio,
			 authorized_at, expires_at, caf_xml, version, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())`
	_, err := r.pool.Exec(ctx, q,
		fr.ID, fr.CompanyID, fr.DTEType, fr.FolioFrom, fr.FolioTo, fr.NextFolio,
		fr.AuthorizedAt, fr.ExpiresAt, fr.CAFXML, fr.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: rango %d-%d tipo %d ya cargado", domain.ErrDuplicate, fr.FolioFrom, fr.FolioTo, fr.DTEType)
		}
		return fmt.Errorf("insert folio_range: %w", err)
	}
	return nil
}

func (r *FolioRangeRepo) GetByID(ctx context.Context, id string) (*entity.FolioRange, error) {
	const q = `
		SELECT id, company_id, dte_type, folio_from, folio_to, next_folio,
		       authorized_at, expires_at, caf_xml, version, created_at, updated_at
		FROM folio_ranges WHERE id = $1`
	fr, err := scanFolioRange(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get folio_range by id: %w", err)
	}
	return fr, nil
}

func (r *FolioRangeRepo) ListByCompany(ctx context.Context, companyID string) ([]*entity.FolioRange, error) {
	const q = `
		SELECT id, company_id, dte_type, folio_from, folio_to, next_folio,
		       authorized_at, expires_at, caf_xml, version, created_at, updated_at
		FROM folio_ranges
		WHERE company_id = $1
		ORDER BY dte_type, authorized_at`
	rows, err := r.pool.Query(ctx, q, companyID)
	if err != nil {
		return nil, fmt.Errorf("list folio_ranges: %w", err)
	}
	defer rows.Close()
	var list []*entity.FolioRange
	for rows.Next() {
		fr, err := scanFolioRange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folio_range: %w", err)
		}
		list = append(list, fr)
	}
	return list, rows.Err()
}

// FindOpenRange devuelve el rango con capacidad y vigente más antiguo por
// fecha de autorización para (empresa, tipo). Si no hay ninguno vigente,
// hasExpired distingue "había rangos pero vencidos" de "no hay nada".
func (r *FolioRangeRepo) FindOpenRange(ctx context.Context, companyID string, dteType int, now time.Time) (*entity.FolioRange, bool, error) {
	const q = `
		SELECT id, company_id, dte_type, folio_from, folio_to, next_folio,
		       authorized_at, expires_at, caf_xml, version, created_at, updated_at
		FROM folio_ranges
		WHERE company_id = $1
		  AND dte_type   = $2
		  AND next_folio <= folio_to
		  AND expires_at  > $3
		ORDER BY authorized_at, expires_at
		LIMIT 1`
	fr, err := scanFolioRange(r.pool.QueryRow(ctx, q, companyID, dteType, now))
	if err == nil {
		return fr, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("find open folio_range: %w", err)
	}

	// Sin rango vigente: ¿existe alguno con capacidad pero vencido?
	const qExpired = `
		SELECT EXISTS (
			SELECT 1 FROM folio_ranges
			WHERE company_id = $1
			  AND dte_type   = $2
			  AND next_folio <= folio_to
			  AND expires_at <= $3
		)`
	var hasExpired bool
	if err := r.pool.QueryRow(ctx, qExpired, companyID, dteType, now).Scan(&hasExpired); err != nil {
		return nil, false, fmt.Errorf("check expired folio_ranges: %w", err)
	}
	return nil, hasExpired, nil
}

// AdvanceNextFolio incrementa next_folio solo si version no cambió desde la
// lectura (compare-and-swap). false = otro escritor ganó; releer y reintentar.
func (r *FolioRangeRepo) AdvanceNextFolio(ctx context.Context, id string, expectedVersion int64) (bool, error) {
	const q = `
		UPDATE folio_ranges
		SET next_folio = next_folio + 1,
		    version    = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		  AND next_folio <= folio_to`
	tag, err := r.pool.Exec(ctx, q, id, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("advance next_folio: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func scanFolioRange(row pgx.Row) (*entity.FolioRange, error) {
	var fr entity.FolioRange
	err := row.Scan(
		&fr.ID, &fr.CompanyID, &fr.DTEType, &fr.FolioFrom, &fr.FolioTo,
		&fr.NextFolio, &fr.AuthorizedAt, &fr.ExpiresAt, &fr.CAFXML,
		&fr.Version, &fr.CreatedAt, &fr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &fr, nil
}

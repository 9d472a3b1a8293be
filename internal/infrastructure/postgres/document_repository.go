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

var _ repository.DocumentRepository = (*DocumentRepo)(nil)
var _ repository.SubmissionAttemptRepository = (*SubmissionAttemptRepo)(nil)

// DocumentRepo implementa DocumentRepository sobre PostgreSQL. Cabecera y
// líneas se insertan en una misma transacción; el documento nunca queda
// persistido sin sus ítems.
type DocumentRepo struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository construye el repositorio.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

const documentColumns = `
	id, company_id, dte_type, folio, issue_date, sale_at,
	receiver_rut, receiver_razon_social, receiver_giro, receiver_direccion, receiver_comuna,
	ref_dte_type, ref_folio, ref_date, ref_reason,
	net_total, tax_total, exempt_total, grand_total,
	status, xml_encoded, xml_signed, track_id, last_error,
	created_at, updated_at`

func (r *DocumentRepo) Create(ctx context.Context, doc *entity.Document, items []*entity.DocumentItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO documents (` + documentColumns + `)
		VALUES
			($1, $2, $3, $4, $5, $6,
			 $7, $8, $9, $10, $11,
			 $12, $13, $14, $15,
			 $16, $17, $18, $19,
			 $20, $21, $22, $23, $24,
			 now(), now())`

	var recRUT, recRazon, recGiro, recDir, recComuna *string
	if doc.Receiver != nil {
		recRUT, recRazon = &doc.Receiver.RUT, &doc.Receiver.RazonSocial
		recGiro, recDir, recComuna = &doc.Receiver.Giro, &doc.Receiver.Direccion, &doc.Receiver.Comuna
	}
	var refType *int
	var refFolio *int64
	var refDate *time.Time
	var refReason *string
	if doc.Reference != nil {
		refType, refFolio = &doc.Reference.DTEType, &doc.Reference.Folio
		refDate, refReason = &doc.Reference.Date, &doc.Reference.Reason
	}

	_, err = tx.Exec(ctx, q,
		doc.ID, doc.CompanyID, doc.DTEType, doc.Folio, doc.IssueDate, doc.SaleAt,
		recRUT, recRazon, recGiro, recDir, recComuna,
		refType, refFolio, refDate, refReason,
		doc.NetTotal, doc.TaxTotal, doc.ExemptTotal, doc.GrandTotal,
		doc.Status, doc.XMLEncoded, doc.XMLSigned, doc.TrackID, doc.LastError,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// El índice único (company_id, dte_type, folio) es la última
			// línea de defensa del folio único.
			return fmt.Errorf("%w: folio %d tipo %d ya emitido", domain.ErrDuplicate, doc.Folio, doc.DTEType)
		}
		return fmt.Errorf("insert document: %w", err)
	}

	const qItem = `
		INSERT INTO document_items
			(id, document_id, line_number, description, quantity, unit_price,
			 discount, exempt, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, it := range items {
		_, err := tx.Exec(ctx, qItem,
			it.ID, it.DocumentID, it.LineNumber, it.Description,
			it.Quantity, it.UnitPrice, it.Discount, it.Exempt, it.LineTotal,
		)
		if err != nil {
			return fmt.Errorf("insert document item %d: %w", it.LineNumber, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get document by id: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepo) GetItems(ctx context.Context, documentID string) ([]*entity.DocumentItem, error) {
	const q = `
		SELECT id, document_id, line_number, description, quantity, unit_price,
		       discount, exempt, line_total
		FROM document_items
		WHERE document_id = $1
		ORDER BY line_number`
	rows, err := r.pool.Query(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("list document items: %w", err)
	}
	defer rows.Close()
	var list []*entity.DocumentItem
	for rows.Next() {
		var it entity.DocumentItem
		err := rows.Scan(
			&it.ID, &it.DocumentID, &it.LineNumber, &it.Description,
			&it.Quantity, &it.UnitPrice, &it.Discount, &it.Exempt, &it.LineTotal,
		)
		if err != nil {
			return nil, fmt.Errorf("scan document item: %w", err)
		}
		list = append(list, &it)
	}
	return list, rows.Err()
}

func (r *DocumentRepo) Update(ctx context.Context, doc *entity.Document) error {
	const q = `
		UPDATE documents
		SET status = $2, xml_encoded = $3, xml_signed = $4, track_id = $5,
		    last_error = $6, updated_at = now()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q,
		doc.ID, doc.Status, doc.XMLEncoded, doc.XMLSigned, doc.TrackID, doc.LastError,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) ListByCompany(ctx context.Context, companyID string, limit int) ([]*entity.Document, error) {
	const q = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	return r.queryDocuments(ctx, q, companyID, limit)
}

// ListSubmittable devuelve documentos elegibles para envío, los más antiguos
// por venta primero. Incluye ERROR: el scheduler los reintenta.
func (r *DocumentRepo) ListSubmittable(ctx context.Context, saleBefore time.Time, limit int) ([]*entity.Document, error) {
	const q = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status IN ('PENDING_SUBMIT', 'ERROR')
		  AND sale_at < $1
		ORDER BY sale_at
		LIMIT $2`
	return r.queryDocuments(ctx, q, saleBefore, limit)
}

func (r *DocumentRepo) ListSent(ctx context.Context, limit int) ([]*entity.Document, error) {
	const q = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status = 'SENT'
		ORDER BY sale_at
		LIMIT $1`
	return r.queryDocuments(ctx, q, limit)
}

func (r *DocumentRepo) queryDocuments(ctx context.Context, q string, args ...any) ([]*entity.Document, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	var list []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

// ── helpers ───────────────────────────────────────────────────────────────────

func scanDocument(row pgx.Row) (*entity.Document, error) {
	var d entity.Document
	var recRUT, recRazon, recGiro, recDir, recComuna *string
	var refType *int
	var refFolio *int64
	var refDate *time.Time
	var refReason *string
	err := row.Scan(
		&d.ID, &d.CompanyID, &d.DTEType, &d.Folio, &d.IssueDate, &d.SaleAt,
		&recRUT, &recRazon, &recGiro, &recDir, &recComuna,
		&refType, &refFolio, &refDate, &refReason,
		&d.NetTotal, &d.TaxTotal, &d.ExemptTotal, &d.GrandTotal,
		&d.Status, &d.XMLEncoded, &d.XMLSigned, &d.TrackID, &d.LastError,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if recRUT != nil {
		d.Receiver = &entity.Receiver{
			RUT:         *recRUT,
			RazonSocial: deref(recRazon),
			Giro:        deref(recGiro),
			Direccion:   deref(recDir),
			Comuna:      deref(recComuna),
		}
	}
	if refType != nil && refFolio != nil {
		d.Reference = &entity.Reference{
			DTEType: *refType,
			Folio:   *refFolio,
			Reason:  deref(refReason),
		}
		if refDate != nil {
			d.Reference.Date = *refDate
		}
	}
	return &d, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SubmissionAttemptRepo implementa SubmissionAttemptRepository. Solo inserta
// y lista; la bitácora de intentos es append-only.
type SubmissionAttemptRepo struct {
	pool *pgxpool.Pool
}

// NewSubmissionAttemptRepository construye el repositorio.
func NewSubmissionAttemptRepository(pool *pgxpool.Pool) *SubmissionAttemptRepo {
	return &SubmissionAttemptRepo{pool: pool}
}

func (r *SubmissionAttemptRepo) Create(ctx context.Context, attempt *entity.SubmissionAttempt) error {
	const q = `
		INSERT INTO submission_attempts
			(id, document_id, attempted_at, outcome, track_id, status_code, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, q,
		attempt.ID, attempt.DocumentID, attempt.AttemptedAt,
		attempt.Outcome, attempt.TrackID, attempt.StatusCode, attempt.Message,
	)
	if err != nil {
		return fmt.Errorf("insert submission_attempt: %w", err)
	}
	return nil
}

func (r *SubmissionAttemptRepo) ListByDocument(ctx context.Context, documentID string) ([]*entity.SubmissionAttempt, error) {
	const q = `
		SELECT id, document_id, attempted_at, outcome, track_id, status_code, message
		FROM submission_attempts
		WHERE document_id = $1
		ORDER BY attempted_at`
	rows, err := r.pool.Query(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("list submission_attempts: %w", err)
	}
	defer rows.Close()
	var list []*entity.SubmissionAttempt
	for rows.Next() {
		var a entity.SubmissionAttempt
		err := rows.Scan(
			&a.ID, &a.DocumentID, &a.AttemptedAt,
			&a.Outcome, &a.TrackID, &a.StatusCode, &a.Message,
		)
		if err != nil {
			return nil, fmt.Errorf("scan submission_attempt: %w", err)
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}

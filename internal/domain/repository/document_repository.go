package repository

import (
	"context"
	"time"

	"github.com/jhoicas/dte-core/internal/domain/entity"
)

// DocumentRepository puerto de persistencia para documentos y sus líneas.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document, items []*entity.DocumentItem) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	GetItems(ctx context.Context, documentID string) ([]*entity.DocumentItem, error)
	Update(ctx context.Context, doc *entity.Document) error
	ListByCompany(ctx context.Context, companyID string, limit int) ([]*entity.Document, error)

	// ListSubmittable devuelve hasta limit documentos en PENDING_SUBMIT o
	// ERROR cuya venta ocurrió antes de saleBefore, los más antiguos
	// primero. El filtro fino por ventana de retención por empresa lo hace
	// el scheduler.
	ListSubmittable(ctx context.Context, saleBefore time.Time, limit int) ([]*entity.Document, error)

	// ListSent devuelve hasta limit documentos en SENT para consulta de
	// estado, los más antiguos primero.
	ListSent(ctx context.Context, limit int) ([]*entity.Document, error)
}

// SubmissionAttemptRepository puerto para la bitácora de intentos de envío.
// Solo inserta y lista; los intentos jamás se modifican.
type SubmissionAttemptRepository interface {
	Create(ctx context.Context, attempt *entity.SubmissionAttempt) error
	ListByDocument(ctx context.Context, documentID string) ([]*entity.SubmissionAttempt, error)
}

// Reconciliación periódica: envía los documentos cuya ventana de retención
// venció y consulta el estado de los ya enviados. Ambas pasadas son
// idempotentes: correr de más nunca duplica envíos ni retrocede estados.
// El timer vive en el worker (asynq); acá solo hay lógica probable sin reloj.

package emission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
	"github.com/jhoicas/dte-core/internal/domain/repository"
	pkgsii "github.com/jhoicas/dte-core/pkg/sii"
)

// DefaultBatchSize acota los documentos por pasada; lo que no quepa sale en
// el ciclo siguiente.
const DefaultBatchSize = 100

// settingsTTL es cuánto vive la ventana de retención cacheada por emisor
// antes de releerla de la base.
const settingsTTL = time.Minute

type cachedDelay struct {
	delay     time.Duration
	fetchedAt time.Time
}

// Reconciler ejecuta las dos pasadas del ciclo de envío.
type Reconciler struct {
	docRepo     repository.DocumentRepository
	companyRepo repository.CompanyRepository
	attemptRepo repository.SubmissionAttemptRepository
	submitter   Submitter
	log         zerolog.Logger
	batchSize   int
	now         func() time.Time

	mu     sync.Mutex
	delays map[string]cachedDelay
}

// NewReconciler construye el reconciliador.
func NewReconciler(
	docRepo repository.DocumentRepository,
	companyRepo repository.CompanyRepository,
	attemptRepo repository.SubmissionAttemptRepository,
	submitter Submitter,
	log zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		docRepo:     docRepo,
		companyRepo: companyRepo,
		attemptRepo: attemptRepo,
		submitter:   submitter,
		log:         log,
		batchSize:   DefaultBatchSize,
		now:         time.Now,
		delays:      make(map[string]cachedDelay),
	}
}

// SetBatchSize ajusta cuántos documentos toma cada pasada.
func (r *Reconciler) SetBatchSize(n int) {
	if n > 0 {
		r.batchSize = n
	}
}

// SubmitPass toma los documentos en cola cuya ventana de retención ya venció
// y los sube al SII, los más antiguos primero. El fallo de un documento no
// detiene la pasada.
func (r *Reconciler) SubmitPass(ctx context.Context) error {
	docs, err := r.docRepo.ListSubmittable(ctx, r.now(), r.batchSize)
	if err != nil {
		return fmt.Errorf("reconciler: listar documentos en cola: %w", err)
	}

	var sent, failed, held int
	for _, stale := range docs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Releer: la lista pudo quedar atrás respecto de una cancelación u
		// otra instancia que ya procesó el documento.
		doc, err := r.docRepo.GetByID(ctx, stale.ID)
		if err != nil {
			r.log.Error().Err(err).Str("document_id", stale.ID).Msg("no se pudo releer el documento")
			continue
		}
		if doc.Status != entity.StatusPendingSubmit && doc.Status != entity.StatusError {
			continue
		}

		delay, err := r.submitDelay(ctx, doc.CompanyID)
		if err != nil {
			r.log.Error().Err(err).Str("company_id", doc.CompanyID).Msg("sin ventana de retención, documento en espera")
			continue
		}
		if r.now().Sub(doc.SaleAt) < delay {
			held++
			continue
		}

		if r.submitOne(ctx, doc) {
			sent++
		} else {
			failed++
		}
	}

	if sent+failed+held > 0 {
		r.log.Info().
			Int("sent", sent).
			Int("failed", failed).
			Int("held", held).
			Msg("pasada de envío completada")
	}
	return nil
}

// submitOne sube un documento y persiste el resultado. Retorna true si el SII
// lo recibió.
func (r *Reconciler) submitOne(ctx context.Context, doc *entity.Document) bool {
	// ERROR vuelve a la cola antes de intentar; así el estado en la base
	// siempre refleja qué se está haciendo con el documento.
	if doc.Status == entity.StatusError {
		doc.Status = entity.StatusPendingSubmit
	}

	company, err := r.companyRepo.GetByID(ctx, doc.CompanyID)
	if err != nil {
		r.recordFailure(ctx, doc, fmt.Errorf("emisor %s: %w", doc.CompanyID, err))
		return false
	}

	trackID, err := r.submitter.Submit(ctx, company, doc)
	if err != nil {
		r.recordFailure(ctx, doc, err)
		return false
	}

	r.recordAttempt(ctx, doc.ID, entity.AttemptOutcomeSent, trackID, "", "")
	doc.TrackID = trackID
	doc.Status = entity.StatusSent
	doc.LastError = ""
	doc.UpdatedAt = r.now()
	if err := r.docRepo.Update(ctx, doc); err != nil {
		// El SII ya lo tiene; el estado local quedará atrás hasta la
		// próxima pasada, que lo releerá antes de reintentar.
		r.log.Error().Err(err).Str("document_id", doc.ID).Msg("no se pudo persistir SENT")
		return false
	}
	r.log.Info().
		Str("document_id", doc.ID).
		Int64("folio", doc.Folio).
		Str("track_id", trackID).
		Msg("documento enviado al SII")
	return true
}

// StatusPass consulta el estado de los documentos enviados y cierra los que
// el SII ya resolvió.
func (r *Reconciler) StatusPass(ctx context.Context) error {
	docs, err := r.docRepo.ListSent(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("reconciler: listar documentos enviados: %w", err)
	}

	for _, stale := range docs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		doc, err := r.docRepo.GetByID(ctx, stale.ID)
		if err != nil || doc.Status != entity.StatusSent {
			continue
		}
		company, err := r.companyRepo.GetByID(ctx, doc.CompanyID)
		if err != nil {
			r.log.Error().Err(err).Str("document_id", doc.ID).Msg("emisor no disponible para consulta de estado")
			continue
		}

		status, err := r.submitter.QueryStatus(ctx, company, doc.TrackID)
		if err != nil {
			// La consulta fallida no cambia nada: el documento sigue SENT
			// y la próxima pasada vuelve a preguntar.
			r.log.Warn().Err(err).
				Str("document_id", doc.ID).
				Str("track_id", doc.TrackID).
				Msg("consulta de estado fallida")
			continue
		}
		r.applyStatus(ctx, doc, status.Estado, status.Glosa)
	}
	return nil
}

// applyStatus mapea el código del SII al estado del documento. Los códigos
// intermedios (REC, EPR, SOK, CRT) no cambian nada.
func (r *Reconciler) applyStatus(ctx context.Context, doc *entity.Document, estado, glosa string) {
	switch {
	case pkgsii.EstadoTerminalAceptado(estado):
		doc.Status = entity.StatusAccepted
		doc.LastError = ""
	case pkgsii.EstadoTerminalRechazado(estado):
		doc.Status = entity.StatusRejected
		doc.LastError = fmt.Sprintf("%s: %s", estado, glosa)
	default:
		r.log.Debug().
			Str("document_id", doc.ID).
			Str("estado", estado).
			Msg("envío aún en proceso")
		return
	}

	doc.UpdatedAt = r.now()
	if err := r.docRepo.Update(ctx, doc); err != nil {
		r.log.Error().Err(err).Str("document_id", doc.ID).Msg("no se pudo persistir el estado final")
		return
	}
	r.log.Info().
		Str("document_id", doc.ID).
		Int64("folio", doc.Folio).
		Str("estado", estado).
		Str("status", doc.Status).
		Msg("envío resuelto por el SII")
}

// ── helpers privados ──────────────────────────────────────────────────────────

// submitDelay devuelve la ventana de retención del emisor, cacheada con TTL
// corto para no consultar la tabla en cada documento de cada ciclo.
func (r *Reconciler) submitDelay(ctx context.Context, companyID string) (time.Duration, error) {
	r.mu.Lock()
	entry, ok := r.delays[companyID]
	r.mu.Unlock()
	if ok && r.now().Sub(entry.fetchedAt) < settingsTTL {
		return entry.delay, nil
	}

	secs, err := r.companyRepo.GetSubmitDelaySecs(ctx, companyID)
	if err != nil {
		return 0, err
	}
	delay := time.Duration(secs) * time.Second
	r.mu.Lock()
	r.delays[companyID] = cachedDelay{delay: delay, fetchedAt: r.now()}
	r.mu.Unlock()
	return delay, nil
}

func (r *Reconciler) recordFailure(ctx context.Context, doc *entity.Document, cause error) {
	r.recordAttempt(ctx, doc.ID, entity.AttemptOutcomeFailed, "", "", cause.Error())

	doc.Status = entity.StatusError
	doc.LastError = cause.Error()
	doc.UpdatedAt = r.now()
	if err := r.docRepo.Update(ctx, doc); err != nil {
		r.log.Error().Err(err).Str("document_id", doc.ID).Msg("no se pudo persistir ERROR")
	}

	evt := r.log.Warn()
	if !domain.IsRetryable(cause) && !errors.Is(cause, context.Canceled) {
		evt = r.log.Error()
	}
	evt.Err(cause).
		Str("document_id", doc.ID).
		Int64("folio", doc.Folio).
		Bool("retryable", domain.IsRetryable(cause)).
		Msg("envío fallido")
}

func (r *Reconciler) recordAttempt(ctx context.Context, documentID, outcome, trackID, statusCode, message string) {
	attempt := &entity.SubmissionAttempt{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		AttemptedAt: r.now(),
		Outcome:     outcome,
		TrackID:     trackID,
		StatusCode:  statusCode,
		Message:     message,
	}
	if err := r.attemptRepo.Create(ctx, attempt); err != nil {
		r.log.Error().Err(err).Str("document_id", documentID).Msg("no se pudo registrar el intento")
	}
}

package emission

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
	pkgsii "github.com/jhoicas/dte-core/pkg/sii"
)

func pendingDoc(id string, saleAgo time.Duration) *entity.Document {
	return &entity.Document{
		ID:        id,
		CompanyID: "co-1",
		DTEType:   39,
		Folio:     1,
		Status:    entity.StatusPendingSubmit,
		SaleAt:    time.Now().Add(-saleAgo),
		XMLSigned: "<DTE/>",
	}
}

func newReconcilerFixture(delaySecs int) (*Reconciler, *fakeDocRepo, *fakeAttemptRepo, *fakeSubmitter, *fakeCompanyRepo) {
	company := &entity.Company{ID: "co-1", RUT: "76543212-K", SubmitDelaySecs: delaySecs}
	docRepo := newFakeDocRepo()
	attemptRepo := &fakeAttemptRepo{}
	submitter := &fakeSubmitter{estado: pkgsii.EstadoEnProceso}
	companyRepo := newFakeCompanyRepo(company)
	rec := NewReconciler(docRepo, companyRepo, attemptRepo, submitter, zerolog.Nop())
	return rec, docRepo, attemptRepo, submitter, companyRepo
}

// ═══════════════════════════════════════════════
// Pasada de envío
// ═══════════════════════════════════════════════

func TestSubmitPass_EnviaLosVencidosMasAntiguosPrimero(t *testing.T) {
	rec, docRepo, attempts, submitter, _ := newReconcilerFixture(0)
	ctx := context.Background()

	require.NoError(t, docRepo.Create(ctx, pendingDoc("nuevo", 1*time.Minute), nil))
	require.NoError(t, docRepo.Create(ctx, pendingDoc("viejo", 10*time.Minute), nil))

	require.NoError(t, rec.SubmitPass(ctx))

	assert.Equal(t, []string{"viejo", "nuevo"}, submitter.submits)
	assert.Equal(t, entity.StatusSent, docRepo.statusOf("viejo"))
	assert.Equal(t, entity.StatusSent, docRepo.statusOf("nuevo"))

	list, err := attempts.ListByDocument(ctx, "viejo")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, entity.AttemptOutcomeSent, list[0].Outcome)
	assert.NotEmpty(t, list[0].TrackID)
}

func TestSubmitPass_RespetaLaVentanaDeRetencion(t *testing.T) {
	rec, docRepo, _, submitter, _ := newReconcilerFixture(300) // 5 minutos
	ctx := context.Background()

	require.NoError(t, docRepo.Create(ctx, pendingDoc("reciente", 1*time.Minute), nil))
	require.NoError(t, docRepo.Create(ctx, pendingDoc("maduro", 10*time.Minute), nil))

	require.NoError(t, rec.SubmitPass(ctx))

	assert.Equal(t, []string{"maduro"}, submitter.submits, "la venta reciente espera su ventana")
	assert.Equal(t, entity.StatusPendingSubmit, docRepo.statusOf("reciente"))
}

func TestSubmitPass_CancelacionTardiaNoSeEnvia(t *testing.T) {
	rec, docRepo, _, submitter, _ := newReconcilerFixture(0)
	ctx := context.Background()

	doc := pendingDoc("doc-1", 10*time.Minute)
	require.NoError(t, docRepo.Create(ctx, doc, nil))

	// Cancelado entre el listado y el intento: la relectura lo detecta.
	doc.Status = entity.StatusCancelled
	require.NoError(t, docRepo.Update(ctx, doc))

	require.NoError(t, rec.SubmitPass(ctx))
	assert.Empty(t, submitter.submits)
	assert.Equal(t, entity.StatusCancelled, docRepo.statusOf("doc-1"))
}

func TestSubmitPass_FalloTransitorioDejaEnError(t *testing.T) {
	rec, docRepo, attempts, submitter, _ := newReconcilerFixture(0)
	submitter.submitErr = fmt.Errorf("%w: connection refused", domain.ErrSubmissionTransient)
	ctx := context.Background()

	require.NoError(t, docRepo.Create(ctx, pendingDoc("doc-1", 10*time.Minute), nil))
	require.NoError(t, rec.SubmitPass(ctx))

	assert.Equal(t, entity.StatusError, docRepo.statusOf("doc-1"))
	list, _ := attempts.ListByDocument(ctx, "doc-1")
	require.Len(t, list, 1)
	assert.Equal(t, entity.AttemptOutcomeFailed, list[0].Outcome)

	// Próximo ciclo sin el fallo: el documento sale de ERROR y se envía.
	submitter.submitErr = nil
	require.NoError(t, rec.SubmitPass(ctx))
	assert.Equal(t, entity.StatusSent, docRepo.statusOf("doc-1"))
}

func TestSubmitPass_UnFalloNoDetieneLaPasada(t *testing.T) {
	rec, docRepo, _, submitter, _ := newReconcilerFixture(0)
	ctx := context.Background()

	malo := pendingDoc("sin-emisor", 10*time.Minute)
	malo.CompanyID = "co-fantasma"
	require.NoError(t, docRepo.Create(ctx, malo, nil))
	require.NoError(t, docRepo.Create(ctx, pendingDoc("bueno", 5*time.Minute), nil))

	require.NoError(t, rec.SubmitPass(ctx))

	assert.Equal(t, []string{"bueno"}, submitter.submits)
	assert.Equal(t, entity.StatusSent, docRepo.statusOf("bueno"))
}

func TestSubmitPass_VentanaCacheada(t *testing.T) {
	rec, docRepo, _, _, companyRepo := newReconcilerFixture(0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, docRepo.Create(ctx, pendingDoc(fmt.Sprintf("doc-%d", i), 10*time.Minute), nil))
	}
	require.NoError(t, rec.SubmitPass(ctx))

	assert.Equal(t, 1, companyRepo.delayReads, "la ventana se lee una vez por emisor, no por documento")
}

func TestSubmitPass_Vacia(t *testing.T) {
	rec, _, _, submitter, _ := newReconcilerFixture(0)
	require.NoError(t, rec.SubmitPass(context.Background()))
	assert.Empty(t, submitter.submits)
}

// ═══════════════════════════════════════════════
// Pasada de estado
// ═══════════════════════════════════════════════

func sentDoc(id, trackID string) *entity.Document {
	return &entity.Document{
		ID:        id,
		CompanyID: "co-1",
		Folio:     1,
		Status:    entity.StatusSent,
		TrackID:   trackID,
		SaleAt:    time.Now().Add(-time.Hour),
	}
}

func TestStatusPass_Aceptado(t *testing.T) {
	rec, docRepo, _, submitter, _ := newReconcilerFixture(0)
	submitter.estado = pkgsii.EstadoAceptado
	ctx := context.Background()

	require.NoError(t, docRepo.Create(ctx, sentDoc("doc-1", "TRACK-9"), nil))
	require.NoError(t, rec.StatusPass(ctx))

	assert.Equal(t, entity.StatusAccepted, docRepo.statusOf("doc-1"))
}

func TestStatusPass_ReparoCuentaComoAceptado(t *testing.T) {
	rec, docRepo, _, submitter, _ := newReconcilerFixture(0)
	submitter.estado = pkgsii.EstadoReparo
	ctx := context.Background()

	require.NoError(t, docRepo.Create(ctx, sentDoc("doc-1", "TRACK-9"), nil))
	require.NoError(t, rec.StatusPass(ctx))

	assert.Equal(t, entity.StatusAccepted, docRepo.statusOf("doc-1"))
}

func TestStatusPass_RechazadoConGlosa(t *testing.T) {
	rec, docRepo, _, submitter, _ := newReconcilerFixture(0)
	submitter.estado = pkgsii.EstadoRechazado
	submitter.glosa = "Error en firma del documento"
	ctx := context.Background()

	require.NoError(t, docRepo.Create(ctx, sentDoc("doc-1", "TRACK-9"), nil))
	require.NoError(t, rec.StatusPass(ctx))

	assert.Equal(t, entity.StatusRejected, docRepo.statusOf("doc-1"))
	doc, _ := docRepo.GetByID(ctx, "doc-1")
	assert.Contains(t, doc.LastError, "Error en firma del documento")
}

func TestStatusPass_EnProcesoNoCambiaNada(t *testing.T) {
	rec, docRepo, _, submitter, _ := newReconcilerFixture(0)
	submitter.estado = pkgsii.EstadoEnProceso
	ctx := context.Background()

	require.NoError(t, docRepo.Create(ctx, sentDoc("doc-1", "TRACK-9"), nil))
	require.NoError(t, rec.StatusPass(ctx))

	assert.Equal(t, entity.StatusSent, docRepo.statusOf("doc-1"))
}

func TestStatusPass_ConsultaFallidaMantieneSent(t *testing.T) {
	rec, docRepo, _, submitter, _ := newReconcilerFixture(0)
	submitter.statusErr = fmt.Errorf("%w: timeout", domain.ErrSubmissionTransient)
	ctx := context.Background()

	require.NoError(t, docRepo.Create(ctx, sentDoc("doc-1", "TRACK-9"), nil))
	require.NoError(t, rec.StatusPass(ctx))

	assert.Equal(t, entity.StatusSent, docRepo.statusOf("doc-1"))
}

func TestStatusPass_IdempotenteTrasResolver(t *testing.T) {
	rec, docRepo, _, submitter, _ := newReconcilerFixture(0)
	submitter.estado = pkgsii.EstadoAceptado
	ctx := context.Background()

	require.NoError(t, docRepo.Create(ctx, sentDoc("doc-1", "TRACK-9"), nil))
	require.NoError(t, rec.StatusPass(ctx))
	calls := submitter.statusCalls

	// Pasadas adicionales: el documento terminal ya no aparece en la lista.
	require.NoError(t, rec.StatusPass(ctx))
	require.NoError(t, rec.StatusPass(ctx))
	assert.Equal(t, calls, submitter.statusCalls, "un documento resuelto no se vuelve a consultar")
	assert.Equal(t, entity.StatusAccepted, docRepo.statusOf("doc-1"))
}

// ═══════════════════════════════════════════════
// Cancelación del contexto
// ═══════════════════════════════════════════════

func TestSubmitPass_ContextoCancelado(t *testing.T) {
	rec, docRepo, _, submitter, _ := newReconcilerFixture(0)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, docRepo.Create(ctx, pendingDoc("doc-1", 10*time.Minute), nil))
	cancel()

	err := rec.SubmitPass(ctx)
	require.Error(t, err)
	assert.Empty(t, submitter.submits)
}

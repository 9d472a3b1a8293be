// Creación de documentos: valida la venta, consume un folio y lleva el
// documento por el tramo síncrono del ciclo:
//
//	CREATED → ENCODED → SEALED → SIGNED → PENDING_SUBMIT
//
// Del envío se encarga el reconciliador, respetando la ventana de retención
// del emisor. Un fallo después de asignar el folio deja el documento en el
// estado alcanzado con LastError: el folio ya está consumido y no vuelve.

package emission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/dte-core/internal/application/dto"
	"github.com/jhoicas/dte-core/internal/application/folio"
	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/dte"
	"github.com/jhoicas/dte-core/internal/domain/entity"
	"github.com/jhoicas/dte-core/internal/domain/repository"
	infrasii "github.com/jhoicas/dte-core/internal/infrastructure/sii"
	pkgsii "github.com/jhoicas/dte-core/pkg/sii"
)

// Service orquesta el ciclo de vida de los documentos tributarios.
type Service struct {
	docRepo     repository.DocumentRepository
	companyRepo repository.CompanyRepository
	attemptRepo repository.SubmissionAttemptRepository
	allocator   *folio.Allocator
	xmlBuilder  *infrasii.XMLBuilderService
	signer      pkgsii.Signer
	certs       infrasii.CertProvider
	log         zerolog.Logger
	now         func() time.Time
}

// NewService construye el servicio de emisión.
func NewService(
	docRepo repository.DocumentRepository,
	companyRepo repository.CompanyRepository,
	attemptRepo repository.SubmissionAttemptRepository,
	allocator *folio.Allocator,
	xmlBuilder *infrasii.XMLBuilderService,
	signer pkgsii.Signer,
	certs infrasii.CertProvider,
	log zerolog.Logger,
) *Service {
	return &Service{
		docRepo:     docRepo,
		companyRepo: companyRepo,
		attemptRepo: attemptRepo,
		allocator:   allocator,
		xmlBuilder:  xmlBuilder,
		signer:      signer,
		certs:       certs,
		log:         log,
		now:         time.Now,
	}
}

// Create valida la venta y emite el documento. Toda validación ocurre antes
// de tocar el contador de folios: una venta malformada jamás gasta un folio.
func (s *Service) Create(ctx context.Context, req *dto.CreateDocumentRequest) (*entity.Document, error) {
	company, reference, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	saleAt := req.SaleAt
	if saleAt.IsZero() {
		saleAt = s.now()
	}

	docID := uuid.NewString()
	lines := make([]dte.SaleLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = dte.SaleLine{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Discount:    it.Discount,
			Exempt:      it.Exempt,
		}
	}
	items, err := dte.BuildItems(docID, lines)
	if err != nil {
		return nil, err
	}
	exemptDoc := req.DTEType == pkgsii.DTEFacturaExenta || req.DTEType == pkgsii.DTEBoletaExenta
	totals, err := dte.ComputeTotals(items, exemptDoc)
	if err != nil {
		return nil, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 1. Consumir folio (punto de no retorno: el folio no se reasigna)
	// ═══════════════════════════════════════════════════════════════════════════
	fr, folioNum, err := s.allocator.Allocate(ctx, req.CompanyID, req.DTEType)
	if err != nil {
		return nil, err
	}

	doc := &entity.Document{
		ID:          docID,
		CompanyID:   req.CompanyID,
		DTEType:     req.DTEType,
		Folio:       folioNum,
		IssueDate:   saleAt,
		SaleAt:      saleAt,
		Receiver:    receiverFromDTO(req.Receiver),
		Reference:   reference,
		NetTotal:    totals.Net,
		TaxTotal:    totals.Tax,
		ExemptTotal: totals.Exempt,
		GrandTotal:  totals.Total,
		Status:      entity.StatusCreated,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	if err := s.docRepo.Create(ctx, doc, items); err != nil {
		return nil, fmt.Errorf("emission: persistir documento: %w", err)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 2. Codificar XML canónico
	// ═══════════════════════════════════════════════════════════════════════════
	encoded, err := s.xmlBuilder.Build(&infrasii.DocumentBuildContext{
		Document: doc,
		Company:  company,
		Items:    items,
	})
	if err != nil {
		return doc, s.markError(ctx, doc, "encode", err)
	}
	doc.XMLEncoded = string(encoded)
	if err := s.advance(ctx, doc, entity.StatusEncoded); err != nil {
		return doc, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 3. Timbrar: TED firmado con la llave del CAF del rango asignado
	// ═══════════════════════════════════════════════════════════════════════════
	cafData, err := infrasii.ParseCAF([]byte(fr.CAFXML))
	if err != nil {
		return doc, s.markError(ctx, doc, "seal", err)
	}
	ted, err := dte.SealDocument(s.tedInput(company, doc, items), cafData.Key)
	if err != nil {
		return doc, s.markError(ctx, doc, "seal", err)
	}
	sealed, err := infrasii.InjectTED(encoded, ted)
	if err != nil {
		return doc, s.markError(ctx, doc, "seal", err)
	}
	if err := s.advance(ctx, doc, entity.StatusSealed); err != nil {
		return doc, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 4. Firma del emisor y paso a la cola de envío
	// ═══════════════════════════════════════════════════════════════════════════
	cert, err := s.certs(company)
	if err != nil {
		return doc, s.markError(ctx, doc, "sign", err)
	}
	signed, err := s.signer.Sign(sealed, cert)
	if err != nil {
		return doc, s.markError(ctx, doc, "sign", err)
	}
	doc.XMLSigned = string(signed)
	if err := s.advance(ctx, doc, entity.StatusSigned); err != nil {
		return doc, err
	}
	if err := s.advance(ctx, doc, entity.StatusPendingSubmit); err != nil {
		return doc, err
	}

	s.log.Info().
		Str("document_id", doc.ID).
		Str("company_id", doc.CompanyID).
		Int("dte_type", doc.DTEType).
		Int64("folio", doc.Folio).
		Str("total", doc.GrandTotal.String()).
		Msg("documento emitido, en cola de envío")
	return doc, nil
}

// Get devuelve el documento con sus líneas.
func (s *Service) Get(ctx context.Context, id string) (*entity.Document, []*entity.DocumentItem, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.docRepo.GetItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return doc, items, nil
}

// Attempts devuelve la bitácora de intentos de envío del documento, del más
// antiguo al más reciente.
func (s *Service) Attempts(ctx context.Context, id string) ([]*entity.SubmissionAttempt, error) {
	if _, err := s.docRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.attemptRepo.ListByDocument(ctx, id)
}

// Cancel retira un documento del ciclo antes de que llegue al SII. Un
// documento ya enviado (SENT en adelante) no se puede cancelar: el folio está
// comprometido ante el SII y solo procede una nota de crédito.
func (s *Service) Cancel(ctx context.Context, id string) (*entity.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entity.CanTransition(doc.Status, entity.StatusCancelled) {
		return nil, fmt.Errorf("%w: no se puede cancelar en estado %s", domain.ErrConflict, doc.Status)
	}
	doc.Status = entity.StatusCancelled
	doc.UpdatedAt = s.now()
	if err := s.docRepo.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("emission: persistir cancelación: %w", err)
	}
	s.log.Info().Str("document_id", id).Int64("folio", doc.Folio).Msg("documento cancelado")
	return doc, nil
}

// ── helpers privados ──────────────────────────────────────────────────────────

// validate revisa la venta completa antes de consumir folio. Devuelve el
// emisor ya cargado para no consultarlo dos veces.
func (s *Service) validate(ctx context.Context, req *dto.CreateDocumentRequest) (*entity.Company, *entity.Reference, error) {
	if req.CompanyID == "" {
		return nil, nil, fmt.Errorf("%w: falta company_id", domain.ErrInvalidInput)
	}
	if !pkgsii.ValidDTETypes[req.DTEType] {
		return nil, nil, fmt.Errorf("%w: tipo de DTE %d no soportado", domain.ErrInvalidInput, req.DTEType)
	}
	if len(req.Items) == 0 {
		return nil, nil, fmt.Errorf("%w: la venta no tiene líneas", domain.ErrInvalidInput)
	}
	if req.Receiver == nil && !entity.AnonymousReceiverAllowed(req.DTEType) {
		return nil, nil, fmt.Errorf("%w: el tipo %d exige identificar al receptor", domain.ErrInvalidInput, req.DTEType)
	}
	if req.Receiver != nil {
		if err := pkgsii.ValidateRUT(req.Receiver.RUT); err != nil {
			return nil, nil, fmt.Errorf("%w: RUT del receptor: %v", domain.ErrInvalidInput, err)
		}
		if req.Receiver.RazonSocial == "" {
			return nil, nil, fmt.Errorf("%w: falta razón social del receptor", domain.ErrInvalidInput)
		}
	}

	var reference *entity.Reference
	if req.Reference != nil {
		refDate, err := time.Parse("2006-01-02", req.Reference.Date)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: fecha de referencia inválida: %v", domain.ErrInvalidInput, err)
		}
		if !pkgsii.ValidDTETypes[req.Reference.DTEType] || req.Reference.Folio <= 0 {
			return nil, nil, fmt.Errorf("%w: referencia malformada", domain.ErrInvalidInput)
		}
		reference = &entity.Reference{
			DTEType: req.Reference.DTEType,
			Folio:   req.Reference.Folio,
			Date:    refDate,
			Reason:  req.Reference.Reason,
		}
	}

	company, err := s.companyRepo.GetByID(ctx, req.CompanyID)
	if err != nil {
		return nil, nil, fmt.Errorf("emission: emisor %s: %w", req.CompanyID, err)
	}
	return company, reference, nil
}

func (s *Service) tedInput(company *entity.Company, doc *entity.Document, items []*entity.DocumentItem) dte.TEDInput {
	in := dte.TEDInput{
		IssuerRUT: company.RUT,
		DTEType:   doc.DTEType,
		Folio:     doc.Folio,
		IssueDate: doc.IssueDate,
		Total:     doc.GrandTotal,
		FirstItem: items[0].Description,
		Timestamp: doc.IssueDate,
	}
	if doc.Receiver != nil {
		in.ReceiverRUT = doc.Receiver.RUT
		in.ReceiverName = doc.Receiver.RazonSocial
	}
	return in
}

// advance transiciona y persiste. Una transición prohibida acá es un bug, no
// un error de datos.
func (s *Service) advance(ctx context.Context, doc *entity.Document, to string) error {
	if !entity.CanTransition(doc.Status, to) {
		return fmt.Errorf("emission: transición %s → %s no permitida", doc.Status, to)
	}
	doc.Status = to
	doc.UpdatedAt = s.now()
	if err := s.docRepo.Update(ctx, doc); err != nil {
		return fmt.Errorf("emission: persistir estado %s: %w", to, err)
	}
	return nil
}

// markError deja el documento en el estado alcanzado con el detalle del fallo
// y devuelve el error original envuelto. El folio ya consumido no se libera.
func (s *Service) markError(ctx context.Context, doc *entity.Document, step string, cause error) error {
	doc.LastError = fmt.Sprintf("%s: %v", step, cause)
	doc.UpdatedAt = s.now()
	if err := s.docRepo.Update(ctx, doc); err != nil {
		s.log.Error().Err(err).Str("document_id", doc.ID).Msg("no se pudo persistir el error del documento")
	}
	s.log.Error().Err(cause).
		Str("document_id", doc.ID).
		Str("step", step).
		Int64("folio", doc.Folio).
		Msg("emisión interrumpida")
	return fmt.Errorf("emission: %s: %w", step, cause)
}

func receiverFromDTO(r *dto.ReceiverRequest) *entity.Receiver {
	if r == nil {
		return nil
	}
	return &entity.Receiver{
		RUT:         r.RUT,
		RazonSocial: r.RazonSocial,
		Giro:        r.Giro,
		Direccion:   r.Direccion,
		Comuna:      r.Comuna,
	}
}

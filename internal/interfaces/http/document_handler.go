package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/dte-core/internal/application/dto"
	"github.com/jhoicas/dte-core/internal/application/emission"
	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
)

// DocumentHandler maneja las peticiones HTTP para la emisión de DTE.
type DocumentHandler struct {
	svc *emission.Service
}

// NewDocumentHandler construye el handler inyectando el servicio de emisión.
func NewDocumentHandler(svc *emission.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Create godoc
// @Summary      Emitir un DTE
// @Tags         documents
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateDocumentRequest  true  "Venta a documentar"
// @Success      201   {object}  dto.DocumentResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/documents [post]
func (h *DocumentHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	// El token acota al emisor: el body no puede emitir a nombre de otro.
	if companyID := GetCompanyID(c); companyID != "" {
		in.CompanyID = companyID
	}
	doc, err := h.svc.Create(c.Context(), &in)
	if err != nil {
		return documentError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toDocumentResponse(doc, nil))
}

// GetByID godoc
// @Summary      Obtener un DTE con sus líneas
// @Tags         documents
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.DocumentResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/documents/{id} [get]
func (h *DocumentHandler) GetByID(c *fiber.Ctx) error {
	id := c.Params("id")
	doc, items, err := h.svc.Get(c.Context(), id)
	if err != nil {
		return documentError(c, err)
	}
	return c.JSON(toDocumentResponse(doc, items))
}

// Status godoc
// @Summary      Estado ligero para polling
// @Tags         documents
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.DocumentStatusDTO
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/status [get]
func (h *DocumentHandler) Status(c *fiber.Ctx) error {
	id := c.Params("id")
	doc, _, err := h.svc.Get(c.Context(), id)
	if err != nil {
		return documentError(c, err)
	}
	return c.JSON(dto.DocumentStatusDTO{
		ID:        doc.ID,
		Status:    doc.Status,
		TrackID:   doc.TrackID,
		LastError: doc.LastError,
	})
}

// Attempts godoc
// @Summary      Bitácora de intentos de envío
// @Tags         documents
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {array}  dto.AttemptResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/attempts [get]
func (h *DocumentHandler) Attempts(c *fiber.Ctx) error {
	id := c.Params("id")
	attempts, err := h.svc.Attempts(c.Context(), id)
	if err != nil {
		return documentError(c, err)
	}
	out := make([]dto.AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, dto.AttemptResponse{
			AttemptedAt: a.AttemptedAt.Format("2006-01-02T15:04:05Z07:00"),
			Outcome:     a.Outcome,
			TrackID:     a.TrackID,
			StatusCode:  a.StatusCode,
			Message:     a.Message,
		})
	}
	return c.JSON(out)
}

// Cancel godoc
// @Summary      Cancelar un DTE antes del envío
// @Tags         documents
// @Produce      json
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.DocumentStatusDTO
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/cancel [post]
func (h *DocumentHandler) Cancel(c *fiber.Ctx) error {
	id := c.Params("id")
	doc, err := h.svc.Cancel(c.Context(), id)
	if err != nil {
		return documentError(c, err)
	}
	return c.JSON(dto.DocumentStatusDTO{ID: doc.ID, Status: doc.Status})
}

// ── helpers ───────────────────────────────────────────────────────────────────

func documentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "documento no encontrado"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrNoFolioAvailable):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "NO_FOLIO", Message: err.Error()})
	case errors.Is(err, domain.ErrFolioRangeExpired):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "FOLIO_EXPIRED", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}

func toDocumentResponse(doc *entity.Document, items []*entity.DocumentItem) *dto.DocumentResponse {
	out := &dto.DocumentResponse{
		ID:          doc.ID,
		CompanyID:   doc.CompanyID,
		DTEType:     doc.DTEType,
		Folio:       doc.Folio,
		IssueDate:   doc.IssueDate.Format("2006-01-02"),
		Status:      doc.Status,
		NetTotal:    doc.NetTotal,
		TaxTotal:    doc.TaxTotal,
		ExemptTotal: doc.ExemptTotal,
		GrandTotal:  doc.GrandTotal,
		TrackID:     doc.TrackID,
		LastError:   doc.LastError,
	}
	for _, it := range items {
		out.Items = append(out.Items, dto.DocumentItemResponse{
			LineNumber:  it.LineNumber,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Discount:    it.Discount,
			Exempt:      it.Exempt,
			LineTotal:   it.LineTotal,
		})
	}
	return out
}

package http

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/dte-core/internal/application/dto"
	"github.com/jhoicas/dte-core/internal/application/folio"
	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
)

// FolioHandler maneja la carga de CAF y la consulta de rangos de folios.
type FolioHandler struct {
	loader *folio.Loader
}

// NewFolioHandler construye el handler inyectando el cargador de CAF.
func NewFolioHandler(loader *folio.Loader) *FolioHandler {
	return &FolioHandler{loader: loader}
}

// LoadCAF godoc
// @Summary      Cargar un CAF (rango de folios autorizado)
// @Tags         folios
// @Accept       multipart/form-data
// @Produce      json
// @Param        id   path      string  true  "ID del emisor"
// @Param        caf  formData  file    true  "Archivo CAF XML entregado por el SII"
// @Success      201  {object}  dto.FolioRangeResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/companies/{id}/folios [post]
func (h *FolioHandler) LoadCAF(c *fiber.Ctx) error {
	companyID := c.Params("id")

	var raw []byte
	if file, err := c.FormFile("caf"); err == nil {
		f, err := file.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_FILE", Message: "no se pudo abrir el archivo"})
		}
		defer f.Close()
		raw, err = io.ReadAll(f)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_FILE", Message: "no se pudo leer el archivo"})
		}
	} else {
		// También se acepta el XML crudo en el body.
		raw = c.Body()
	}
	if len(raw) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "MISSING_CAF", Message: "falta el archivo CAF (campo caf o body XML)"})
	}

	fr, err := h.loader.Load(c.Context(), companyID, raw)
	if err != nil {
		return folioError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toFolioRangeResponse(fr))
}

// ListRanges godoc
// @Summary      Listar rangos de folios del emisor
// @Tags         folios
// @Produce      json
// @Param        id   path  string  true  "ID del emisor"
// @Success      200  {array}  dto.FolioRangeResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/companies/{id}/folios [get]
func (h *FolioHandler) ListRanges(c *fiber.Ctx) error {
	ranges, err := h.loader.ListRanges(c.Context(), c.Params("id"))
	if err != nil {
		return folioError(c, err)
	}
	out := make([]dto.FolioRangeResponse, 0, len(ranges))
	for _, fr := range ranges {
		out = append(out, *toFolioRangeResponse(fr))
	}
	return c.JSON(out)
}

func folioError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "emisor no encontrado"})
	case errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "DUPLICATE", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	default:
		// ParseCAF y las validaciones del loader devuelven errores planos;
		// todos son problemas del archivo, no del servidor.
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_CAF", Message: err.Error()})
	}
}

func toFolioRangeResponse(fr *entity.FolioRange) *dto.FolioRangeResponse {
	return &dto.FolioRangeResponse{
		ID:           fr.ID,
		DTEType:      fr.DTEType,
		FolioFrom:    fr.FolioFrom,
		FolioTo:      fr.FolioTo,
		NextFolio:    fr.NextFolio,
		Remaining:    fr.Remaining(),
		AuthorizedAt: fr.AuthorizedAt.Format("2006-01-02"),
		ExpiresAt:    fr.ExpiresAt.Format("2006-01-02"),
	}
}

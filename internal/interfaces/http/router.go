package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/dte-core/internal/application/company"
	"github.com/jhoicas/dte-core/internal/application/emission"
	"github.com/jhoicas/dte-core/internal/application/folio"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	CompanySvc  *company.Service
	EmissionSvc *emission.Service
	FolioLoader *folio.Loader
	JWTSecret   string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Rutas protegidas (requieren Bearer Token emitido por la plataforma)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Companies (protegido; alta y edición solo para operadores)
	companies := protected.Group("/companies")
	companyHandler := NewCompanyHandler(deps.CompanySvc)
	companies.Get("/", companyHandler.List)
	companies.Get("/:id", companyHandler.GetByID)
	companies.Post("/", RequireRole("operator"), companyHandler.Create)
	companies.Put("/:id", RequireRole("operator"), companyHandler.Update)

	// Folios: carga de CAF y consulta de rangos por emisor
	folioHandler := NewFolioHandler(deps.FolioLoader)
	companies.Post("/:id/folios", RequireRole("operator"), folioHandler.LoadCAF)
	companies.Get("/:id/folios", folioHandler.ListRanges)

	// Documents: emisión, consulta, polling de estado y cancelación
	documents := protected.Group("/documents")
	documentHandler := NewDocumentHandler(deps.EmissionSvc)
	documents.Post("/", RequireRole("operator"), documentHandler.Create)
	documents.Get("/:id", documentHandler.GetByID)
	documents.Get("/:id/status", documentHandler.Status)
	documents.Get("/:id/attempts", documentHandler.Attempts)
	documents.Post("/:id/cancel", RequireRole("operator"), documentHandler.Cancel)
}

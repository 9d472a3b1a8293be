package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	appcompany "github.com/jhoicas/dte-core/internal/application/company"
	"github.com/jhoicas/dte-core/internal/application/emission"
	appfolio "github.com/jhoicas/dte-core/internal/application/folio"
	"github.com/jhoicas/dte-core/internal/infrastructure/postgres"
	infrasii "github.com/jhoicas/dte-core/internal/infrastructure/sii"
	httpRouter "github.com/jhoicas/dte-core/internal/interfaces/http"
	"github.com/jhoicas/dte-core/pkg/config"
	"github.com/jhoicas/dte-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New("api", cfg.App.Env, cfg.App.LogLevel)
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando API de emisión")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	companyRepo := postgres.NewCompanyRepository(pool)
	folioRepo := postgres.NewFolioRangeRepository(pool)
	docRepo := postgres.NewDocumentRepository(pool)
	attemptRepo := postgres.NewSubmissionAttemptRepository(pool)

	allocator := appfolio.NewAllocator(folioRepo, log)
	cafLoader := appfolio.NewLoader(folioRepo, companyRepo, log)

	// Ciclo de emisión: folio → XML → TED → firma. Todo síncrono en el POST;
	// el envío al SII lo hace el worker.
	emissionSvc := emission.NewService(
		docRepo, companyRepo, attemptRepo,
		allocator,
		infrasii.NewXMLBuilderService(),
		infrasii.NewDigitalSignatureService(),
		infrasii.LoadCompanyCert,
		log,
	)
	companySvc := appcompany.NewService(companyRepo)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		CompanySvc:  companySvc,
		EmissionSvc: emissionSvc,
		FolioLoader: cafLoader,
		JWTSecret:   cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("API detenida")
}

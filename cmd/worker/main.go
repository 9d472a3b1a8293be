package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/jhoicas/dte-core/internal/application/emission"
	"github.com/jhoicas/dte-core/internal/infrastructure/postgres"
	infrasii "github.com/jhoicas/dte-core/internal/infrastructure/sii"
	"github.com/jhoicas/dte-core/internal/jobs"
	"github.com/jhoicas/dte-core/pkg/config"
	"github.com/jhoicas/dte-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New("worker", cfg.App.Env, cfg.App.LogLevel)
	log.Info().
		Str("env", cfg.App.Env).
		Str("sii_env", cfg.SII.Env).
		Dur("interval", cfg.SII.ReconcileEvery).
		Msg("iniciando worker de reconciliación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	companyRepo := postgres.NewCompanyRepository(pool)
	docRepo := postgres.NewDocumentRepository(pool)
	attemptRepo := postgres.NewSubmissionAttemptRepository(pool)

	// En sii_env=dev no hay red: se usa el submitter simulado que acepta
	// todo. En cert/prod, el cliente real con handshake semilla→token.
	var submitter emission.Submitter
	if cfg.SII.Env == "dev" {
		submitter = infrasii.NewMockSubmitter(log)
	} else {
		gateway := infrasii.NewAuthGateway(
			infrasii.NewHTTPAuthAPI(cfg.SII.SeedURL, cfg.SII.TokenURL),
			infrasii.NewMemoryTokenCache(),
			infrasii.LoadCompanyCert,
			log,
		)
		submitter = infrasii.NewHTTPSubmitter(cfg.SII.UploadURL, cfg.SII.StatusURL, gateway, log)
	}

	reconciler := emission.NewReconciler(docRepo, companyRepo, attemptRepo, submitter, log)
	reconciler.SetBatchSize(cfg.SII.BatchSize)

	worker, err := jobs.NewWorker(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		reconciler,
		cfg.SII.ReconcileEvery,
		log,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("configurar worker")
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("worker finalizado con error")
	}
	log.Info().Msg("worker detenido")
}

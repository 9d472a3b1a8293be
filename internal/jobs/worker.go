package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/jhoicas/dte-core/internal/application/emission"
)

// Worker envuelve el servidor asynq y el scheduler que dispara las pasadas
// del reconciliador a intervalo fijo. asynq deduplica la agenda entre
// instancias: con varios workers corriendo, cada pasada se encola una vez.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	log       zerolog.Logger
}

// NewWorker construye el worker. interval es el tiempo entre pasadas; ambas
// (envío y consulta de estado) corren con la misma cadencia.
func NewWorker(redisOpts asynq.RedisClientOpt, rec *emission.Reconciler, interval time.Duration, log zerolog.Logger) (*Worker, error) {
	srv := asynq.NewServer(redisOpts, asynq.Config{
		// Una pasada a la vez por tipo: las pasadas son baratas y el orden
		// oldest-first se pierde si compiten entre sí.
		Concurrency: 2,
		Queues: map[string]int{
			QueueDTE: 1,
		},
		Logger: asynqLogger{log},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeSubmitPass, func(ctx context.Context, t *asynq.Task) error {
		return rec.SubmitPass(ctx)
	})
	mux.HandleFunc(TaskTypeStatusPass, func(ctx context.Context, t *asynq.Task) error {
		return rec.StatusPass(ctx)
	})

	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{Location: time.UTC})
	spec := fmt.Sprintf("@every %s", interval)
	for _, task := range []*asynq.Task{NewSubmitPassTask(), NewStatusPassTask()} {
		if _, err := scheduler.Register(spec, task, asynq.Queue(QueueDTE)); err != nil {
			return nil, fmt.Errorf("jobs: registrar %s: %w", task.Type(), err)
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, log: log}, nil
}

// Run procesa tareas hasta que el contexto se cancele.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("jobs: iniciar scheduler: %w", err)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.scheduler.Shutdown()
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		w.scheduler.Shutdown()
		return err
	}
}

// asynqLogger adapta zerolog a la interfaz de logging de asynq.
type asynqLogger struct {
	zl zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.zl.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.zl.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.zl.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.zl.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.zl.Fatal().Msg(fmt.Sprint(args...)) }

package jobs

import "github.com/hibiken/asynq"

// Cola y tipos de tarea del reconciliador. Las pasadas no llevan payload:
// toda la información vive en la base y cada pasada es idempotente, así que
// ejecutar una tarea duplicada es inocuo.
const (
	QueueDTE = "dte"

	TaskTypeSubmitPass = "dte:submit_pass"
	TaskTypeStatusPass = "dte:status_pass"
)

// NewSubmitPassTask construye la tarea de la pasada de envío.
func NewSubmitPassTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSubmitPass, nil)
}

// NewStatusPassTask construye la tarea de la pasada de consulta de estado.
func NewStatusPassTask() *asynq.Task {
	return asynq.NewTask(TaskTypeStatusPass, nil)
}

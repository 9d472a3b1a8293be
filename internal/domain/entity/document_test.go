package entity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/dte-core/internal/domain/entity"
)

// La tabla de transiciones es la única fuente de verdad del ciclo de vida;
// el scheduler y los casos de uso solo la consultan. Se prueba sin timers.

func TestCanTransition_FlujoNormal(t *testing.T) {
	steps := []struct{ from, to string }{
		{entity.StatusCreated, entity.StatusEncoded},
		{entity.StatusEncoded, entity.StatusSealed},
		{entity.StatusSealed, entity.StatusSigned},
		{entity.StatusSigned, entity.StatusPendingSubmit},
		{entity.StatusPendingSubmit, entity.StatusSent},
		{entity.StatusSent, entity.StatusAccepted},
	}
	for _, s := range steps {
		assert.True(t, entity.CanTransition(s.from, s.to), "%s → %s", s.from, s.to)
	}
}

func TestCanTransition_CarrilDeError(t *testing.T) {
	assert.True(t, entity.CanTransition(entity.StatusPendingSubmit, entity.StatusError))
	assert.True(t, entity.CanTransition(entity.StatusSent, entity.StatusError))
	assert.True(t, entity.CanTransition(entity.StatusError, entity.StatusPendingSubmit),
		"el scheduler devuelve ERROR a la cola de envío")
	assert.True(t, entity.CanTransition(entity.StatusError, entity.StatusCancelled),
		"el operador puede cancelar un documento atascado")
}

func TestCanTransition_EstadosTerminales(t *testing.T) {
	for _, terminal := range []string{entity.StatusAccepted, entity.StatusRejected, entity.StatusCancelled} {
		assert.True(t, entity.IsTerminalStatus(terminal))
		for _, to := range []string{
			entity.StatusPendingSubmit, entity.StatusSent, entity.StatusError,
		} {
			assert.False(t, entity.CanTransition(terminal, to),
				"%s es terminal, no admite → %s", terminal, to)
		}
	}
}

func TestCanTransition_SinSaltos(t *testing.T) {
	// No se puede enviar un documento sin firmar ni aceptar uno no enviado.
	assert.False(t, entity.CanTransition(entity.StatusEncoded, entity.StatusSent))
	assert.False(t, entity.CanTransition(entity.StatusPendingSubmit, entity.StatusAccepted))
	assert.False(t, entity.CanTransition(entity.StatusCreated, entity.StatusPendingSubmit))
}

func TestAnonymousReceiverAllowed(t *testing.T) {
	assert.True(t, entity.AnonymousReceiverAllowed(39), "boleta admite receptor anónimo")
	assert.True(t, entity.AnonymousReceiverAllowed(41))
	assert.False(t, entity.AnonymousReceiverAllowed(33), "factura exige receptor")
	assert.False(t, entity.AnonymousReceiverAllowed(61))
}

func TestFolioRange_Invariantes(t *testing.T) {
	fr := &entity.FolioRange{FolioFrom: 1, FolioTo: 3, NextFolio: 1}
	assert.False(t, fr.Exhausted())
	assert.EqualValues(t, 3, fr.Remaining())

	fr.NextFolio = 4 // next == to+1: agotado
	assert.True(t, fr.Exhausted())
	assert.EqualValues(t, 0, fr.Remaining())
}

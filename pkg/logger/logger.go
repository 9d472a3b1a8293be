package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New crea el logger estructurado del proceso. En development escribe consola
// legible; en cualquier otro ambiente, JSON una línea por evento. El campo
// service distingue api de worker cuando ambos escriben al mismo destino.
//
// Los servicios reciben zerolog.Logger por valor y derivan subloggers con
// .With(); no hay wrapper propio.
func New(service, env, level string) zerolog.Logger {
	var w io.Writer = os.Stdout
	if env == "development" {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	zl := zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	// Librerías que usan el logger global de zerolog escriben al mismo sitio.
	log.Logger = zl
	return zl
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

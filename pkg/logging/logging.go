package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger for a service.
// pretty switches to the human readable console writer.
func Setup(service, level string, pretty bool) zerolog.Logger {
	return setup(os.Stderr, service, level, pretty)
}

func setup(out io.Writer, service, level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}
	l := zerolog.New(out).With().Timestamp().Str("service", service).Logger()
	log.Logger = l
	return l
}

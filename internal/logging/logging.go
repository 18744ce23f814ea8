package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global logger. verbose forces debug regardless of level.
func Init(level string, verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// NewLogger creates a logger over the given writers, or the global one.
func NewLogger(writers ...io.Writer) zerolog.Logger {
	switch len(writers) {
	case 0:
		return log.Logger
	case 1:
		return zerolog.New(writers[0]).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
}

// WithComponent tags a logger with a component field
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

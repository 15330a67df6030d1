package coflow

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Field keys used in scheduler log events.
const (
	FieldComponent = "component"
	FieldTaskID    = "task_id"
	FieldTask      = "task"
	FieldState     = "state"
	FieldDuration  = "duration_ms"
)

// NewLogger builds a zerolog.Logger from cfg, tagged with the given
// component name. An unknown level falls back to info.
func NewLogger(cfg LogConfig, component string) zerolog.Logger {
	cfg.ApplyDefaults()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := outputWriter(cfg.Output)

	var zl zerolog.Logger
	if cfg.Format == "console" {
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.TimeOnly,
			NoColor:    cfg.NoColor,
		})
	} else {
		zl = zerolog.New(out)
	}

	return zl.Level(level).With().
		Timestamp().
		Str(FieldComponent, component).
		Logger()
}

func outputWriter(output string) io.Writer {
	if output == "stdout" {
		return os.Stdout
	}
	return os.Stderr
}

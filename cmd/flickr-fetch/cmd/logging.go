package cmd

import (
	"io"
	"os"

	"go-flickr-fetch/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// stdoutIsTerminal reports whether stdout is attached to a terminal.
// Piped output disables verbose logging.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// newLogger creates the process logger writing to w. Every entry carries a
// "run" field so a single invocation can be picked out of shared logs.
func newLogger(w io.Writer) (*log.Logger, *log.Entry) {
	logger := log.New()
	logger.SetOutput(w)
	logger.SetLevel(log.WarnLevel)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return logger, logger.WithField("run", uuid.NewString())
}

// configureLogger applies the configured level and format.
func configureLogger(logger *log.Logger, cfg models.Config, verbose bool) {
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogLevel != "" {
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level '%s', keeping '%s'", cfg.LogLevel, logger.GetLevel())
		} else {
			logger.SetLevel(level)
		}
	}

	switch cfg.LogFormat {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "text", "":
	default:
		logger.Warnf("Invalid log format '%s', using text", cfg.LogFormat)
	}
}

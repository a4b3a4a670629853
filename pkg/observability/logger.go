package observability

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LoggerConfig controls how the process-wide logger is built.
type LoggerConfig struct {
	// Level is a logrus level name such as "debug", "info", "warn" or "error".
	Level string
	// Format is either "json" or "text". JSON is the default because log
	// aggregation expects one JSON object per line.
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// NewLogger builds the shared logrus logger from config. Unknown levels fall
// back to info rather than failing startup.
func NewLogger(cfg LoggerConfig) *logrus.Logger {
	logger := logrus.New()

	if cfg.Output != nil {
		logger.SetOutput(cfg.Output)
	} else {
		logger.SetOutput(os.Stdout)
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	return logger
}

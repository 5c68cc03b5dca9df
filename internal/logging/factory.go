package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	BackendSlog   = "slog"
	BackendLogrus = "logrus"
)

// New builds a JSON logger writing to w. backend selects the implementation
// (slog by default) and level is one of debug, info, warn, error.
func New(backend, level string, w io.Writer) Logger {
	level = strings.ToLower(strings.TrimSpace(level))

	if strings.EqualFold(backend, BackendLogrus) {
		l := logrus.New()
		l.SetOutput(w)
		l.SetFormatter(&logrus.JSONFormatter{})
		switch level {
		case "debug":
			l.SetLevel(logrus.DebugLevel)
		case "warn", "warning":
			l.SetLevel(logrus.WarnLevel)
		case "error":
			l.SetLevel(logrus.ErrorLevel)
		default:
			l.SetLevel(logrus.InfoLevel)
		}
		return NewLogrusLogger(l)
	}

	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return NewSlogLogger(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})))
}

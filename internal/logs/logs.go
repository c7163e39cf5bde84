package logs

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hackgods/counsel-coordinator/internal/config"
)

// New builds the process logger. Stdout is always written; LOG_FILE adds a
// rotated file next to it. Dev gets text with source lines, prod gets JSON.
func New(cfg config.Config, service string) *slog.Logger {
	isDev := strings.EqualFold(cfg.Env, "dev")

	writers := []io.Writer{os.Stdout}
	if cfg.LogFile != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}

	return slog.New(newHandler(io.MultiWriter(writers...), cfg, isDev)).With(
		slog.String("service", service),
		slog.String("env", cfg.Env),
	)
}

func newHandler(w io.Writer, cfg config.Config, isDev bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.LogLevel),
		AddSource: isDev,
	}
	if strings.EqualFold(cfg.LogFormat, "json") || (!isDev && !strings.EqualFold(cfg.LogFormat, "text")) {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Discard is used where a logger is required but output is not wanted.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

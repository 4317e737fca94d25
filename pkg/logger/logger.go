package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	With(key string, value any) Logger
}

type ZeroLogger struct {
	logger zerolog.Logger
}

// New returns a logger writing human-readable output to stdout.
func New(level string) *ZeroLogger {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return NewWriter(level, output)
}

// NewWriter returns a logger writing to w.
func NewWriter(level string, w io.Writer) *ZeroLogger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}

	z := zerolog.New(w).Level(l).With().Timestamp().Logger()

	return &ZeroLogger{logger: z}
}

// NewFile returns a logger appending to the file at path, creating
// parent directories as needed. The UI owns the terminal while the
// program runs, so interactive builds log to a file instead of stdout.
func NewFile(level, path string) (*ZeroLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return NewWriter(level, f), nil
}

// Nop returns a logger that discards everything.
func Nop() *ZeroLogger {
	return &ZeroLogger{logger: zerolog.Nop()}
}

func (l *ZeroLogger) Debug(msg string, args ...any) {
	if len(args) > 0 {
		l.logger.Debug().Fields(toFields(args...)).Msg(msg)
	} else {
		l.logger.Debug().Msg(msg)
	}
}

func (l *ZeroLogger) Info(msg string, args ...any) {
	if len(args) > 0 {
		l.logger.Info().Fields(toFields(args...)).Msg(msg)
	} else {
		l.logger.Info().Msg(msg)
	}
}

func (l *ZeroLogger) Warn(msg string, args ...any) {
	if len(args) > 0 {
		l.logger.Warn().Fields(toFields(args...)).Msg(msg)
	} else {
		l.logger.Warn().Msg(msg)
	}
}

func (l *ZeroLogger) Error(msg string, args ...any) {
	if len(args) > 0 {
		l.logger.Error().Fields(toFields(args...)).Msg(msg)
	} else {
		l.logger.Error().Msg(msg)
	}
}

func (l *ZeroLogger) Fatal(msg string, args ...any) {
	if len(args) > 0 {
		l.logger.Fatal().Fields(toFields(args...)).Msg(msg)
	} else {
		l.logger.Fatal().Msg(msg)
	}
}

func (l *ZeroLogger) With(key string, value any) Logger {
	return &ZeroLogger{logger: l.logger.With().Interface(key, value).Logger()}
}

func toFields(args ...any) map[string]any {
	fields := make(map[string]any)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			key, ok := args[i].(string)
			if ok {
				fields[key] = args[i+1]
			}
		}
	}
	return fields
}

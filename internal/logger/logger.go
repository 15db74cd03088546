package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Stderr is the Options.File value that logs to the terminal.
const Stderr = "stderr"

type Options struct {
	Level string // debug, info, warn, error
	File  string
}

// New builds a zap logger. File output uses the JSON production encoder
// because the TUI owns the terminal; Stderr uses the console encoder.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	file := strings.TrimSpace(opts.File)
	if file == "" || file == Stderr {
		cfg = zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	} else {
		if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		cfg = zap.NewProductionConfig()
		cfg.OutputPaths = []string{file}
		cfg.ErrorOutputPaths = []string{file}
		cfg.Sampling = nil
	}

	if opts.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

type ctxKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the context logger, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

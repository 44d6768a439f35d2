// Package logging builds the zap loggers copycat reports diagnostics to.
package logging

import (
	"context"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey struct{}

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path; default stderr
}

// ParseLevel parses level, falling back to info when it is empty or
// unknown.
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// New builds a logger from cfg. The console format uses zap's
// development encoder; anything else is production JSON.
func New(cfg Config) (*zap.Logger, error) {
	var config zap.Config
	if cfg.Format == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))
	out := cfg.OutputPath
	if out == "" {
		out = "stderr"
	}
	config.OutputPaths = []string{out}
	config.ErrorOutputPaths = []string{"stderr"}

	return config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// NewWriter builds a logger from cfg that writes to w instead of
// OutputPath. Timestamps are omitted so output is stable.
func NewWriter(cfg Config, w io.Writer) *zap.Logger {
	var enc zapcore.EncoderConfig
	if cfg.Format == "console" {
		enc = zap.NewDevelopmentEncoderConfig()
	} else {
		enc = zap.NewProductionEncoderConfig()
	}
	enc.TimeKey = ""

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(enc)
	} else {
		encoder = zapcore.NewJSONEncoder(enc)
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), ParseLevel(cfg.Level))
	return zap.New(core)
}

// IntoContext returns a copy of ctx carrying l.
func IntoContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger carried by ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(contextKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

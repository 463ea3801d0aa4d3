package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured, context-carrying logging interface every
// component in this repository takes instead of a bare *zap.Logger:
// callers attach request-scoped fields to a context.Context via
// WithLogField and the implementation extracts them on
// each call, so a function only needs a context, never a logger
// threaded through every signature.
type Logger interface {
	Debug(ctx context.Context, msg string)
	Debugf(ctx context.Context, format string, args ...interface{})
	Info(ctx context.Context, msg string)
	Infof(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, msg string)
	Warnf(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, msg string)
	Errorf(ctx context.Context, format string, args ...interface{})
	// With returns a Logger that always attaches the given fields, in
	// addition to whatever the call-site context carries.
	With(fields LogFields) Logger
}

// Config controls how NewLogger builds its zap backend. Options map
// directly onto the operator's `verbosity` configuration option
// (spec §6) and onto the ambient component/version identity every log
// line should carry.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Format is "json" or "console". Defaults to "json".
	Format string
	// Output is "stdout" or "stderr". Defaults to "stdout".
	Output string
	// Component names the process/binary emitting these logs, e.g.
	// "project-operator".
	Component string
	// Version is the operator build version, stamped into every line.
	Version string
}

// ConfigFromEnv builds a Config from LOG_LEVEL / LOG_FORMAT / LOG_OUTPUT
// environment variables, falling back to defaults for any that are
// unset. Component and Version are left empty for the caller to fill in.
func ConfigFromEnv() Config {
	return Config{
		Level:  envOrDefault("LOG_LEVEL", "info"),
		Format: envOrDefault("LOG_FORMAT", "json"),
		Output: envOrDefault("LOG_OUTPUT", "stdout"),
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type zapLogger struct {
	base   *zap.Logger
	static LogFields
}

// NewLogger builds a Logger backed by go.uber.org/zap, configured per cfg.
func NewLogger(cfg Config) (Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(orDefault(cfg.Level, "info")))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var encoder zapcore.Encoder
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	switch strings.ToLower(orDefault(cfg.Format, "json")) {
	case "console":
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer
	switch strings.ToLower(orDefault(cfg.Output, "stdout")) {
	case "stderr":
		sink = zapcore.AddSync(os.Stderr)
	default:
		sink = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, level)
	base := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	static := LogFields{}
	if cfg.Component != "" {
		static[string(ComponentKey)] = cfg.Component
	}
	if cfg.Version != "" {
		static[string(VersionKey)] = cfg.Version
	}
	if hostname, err := os.Hostname(); err == nil {
		static[string(HostnameKey)] = hostname
	}

	return &zapLogger{base: base, static: static}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (l *zapLogger) fieldsFor(ctx context.Context) []zap.Field {
	merged := make(LogFields, len(l.static))
	for k, v := range l.static {
		merged[k] = v
	}
	for k, v := range GetLogFields(ctx) {
		merged[k] = v
	}
	fields := make([]zap.Field, 0, len(merged))
	for k, v := range merged {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

func (l *zapLogger) Debug(ctx context.Context, msg string) {
	l.base.Debug(msg, l.fieldsFor(ctx)...)
}

func (l *zapLogger) Debugf(ctx context.Context, format string, args ...interface{}) {
	l.base.Debug(fmt.Sprintf(format, args...), l.fieldsFor(ctx)...)
}

func (l *zapLogger) Info(ctx context.Context, msg string) {
	l.base.Info(msg, l.fieldsFor(ctx)...)
}

func (l *zapLogger) Infof(ctx context.Context, format string, args ...interface{}) {
	l.base.Info(fmt.Sprintf(format, args...), l.fieldsFor(ctx)...)
}

func (l *zapLogger) Warn(ctx context.Context, msg string) {
	l.base.Warn(msg, l.fieldsFor(ctx)...)
}

func (l *zapLogger) Warnf(ctx context.Context, format string, args ...interface{}) {
	l.base.Warn(fmt.Sprintf(format, args...), l.fieldsFor(ctx)...)
}

func (l *zapLogger) Error(ctx context.Context, msg string) {
	l.base.Error(msg, l.fieldsFor(ctx)...)
}

func (l *zapLogger) Errorf(ctx context.Context, format string, args ...interface{}) {
	l.base.Error(fmt.Sprintf(format, args...), l.fieldsFor(ctx)...)
}

func (l *zapLogger) With(fields LogFields) Logger {
	merged := make(LogFields, len(l.static)+len(fields))
	for k, v := range l.static {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &zapLogger{base: l.base, static: merged}
}

// NewNop returns a Logger that discards everything, for tests that
// don't care about log output.
func NewNop() Logger {
	return &zapLogger{base: zap.NewNop(), static: LogFields{}}
}

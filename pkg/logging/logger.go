// Package logging provides structured logging using zap, bridged to
// OpenTelemetry, behind the core.ILogger interface.
package logging

import (
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gridwarden/internal/core"
)

// ZapLogger implements core.ILogger using zap.Logger.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger builds a ZapLogger at the given level that writes to stdout,
// tee'd to an otelzap core on the global OTel logger provider (the no-op
// default unless a caller installs one; nothing in this module does).
func NewZapLogger(levelStr string) (*ZapLogger, error) {
	zapLevel := parseZapLevel(levelStr)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		zapLevel,
	)

	otelCore := otelzap.NewCore("gridwarden", otelzap.WithLoggerProvider(global.GetLoggerProvider()))
	combined := zapcore.NewTee(consoleCore, otelCore)

	return &ZapLogger{logger: zap.New(combined, zap.AddCaller(), zap.AddCallerSkip(1))}, nil
}

func parseZapLevel(levelStr string) zapcore.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return zap.DebugLevel
	case "WARN":
		return zap.WarnLevel
	case "ERROR":
		return zap.ErrorLevel
	case "FATAL":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func toZapFields(fields []core.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func (l *ZapLogger) Debug(msg string, fields ...core.Field) {
	l.logger.Debug(msg, toZapFields(fields)...)
}

func (l *ZapLogger) Info(msg string, fields ...core.Field) {
	l.logger.Info(msg, toZapFields(fields)...)
}

func (l *ZapLogger) Warn(msg string, fields ...core.Field) {
	l.logger.Warn(msg, toZapFields(fields)...)
}

func (l *ZapLogger) Error(msg string, err error, fields ...core.Field) {
	zf := toZapFields(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.logger.Error(msg, zf...)
}

func (l *ZapLogger) Fatal(msg string, err error, fields ...core.Field) {
	zf := toZapFields(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.logger.Fatal(msg, zf...)
}

func (l *ZapLogger) WithField(key string, value interface{}) core.ILogger {
	return &ZapLogger{logger: l.logger.With(zap.Any(key, value))}
}

func (l *ZapLogger) WithFields(fields ...core.Field) core.ILogger {
	return &ZapLogger{logger: l.logger.With(toZapFields(fields)...)}
}

// WithContext returns a logger prefixed with [symbol][keyPrefix][venue], the
// context format spec.md C14 requires of every engine-tick log line.
func (l *ZapLogger) WithContext(symbol, keyPrefix, venue string) core.ILogger {
	return &ZapLogger{logger: l.logger.With(
		zap.String("symbol", symbol),
		zap.String("key_prefix", keyPrefix),
		zap.String("venue", venue),
	).Named("[" + symbol + "][" + keyPrefix + "][" + venue + "]")}
}

// Sync flushes any buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

var _ core.ILogger = (*ZapLogger)(nil)

var globalLogger core.ILogger

func init() {
	logger, _ := NewZapLogger("INFO")
	globalLogger = logger
}

// SetGlobalLogger sets the package-level logger returned by GetGlobalLogger.
func SetGlobalLogger(logger core.ILogger) { globalLogger = logger }

// GetGlobalLogger returns the package-level logger.
func GetGlobalLogger() core.ILogger { return globalLogger }

// Package logger provides structured logging backed by zap.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used across the service.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a new logger with the given fields attached to all
	// subsequent entries.
	With(fields ...Field) Logger

	// Sync flushes any buffered log entries. Call before exiting.
	Sync() error
}

// Field is a type alias for zapcore.Field.
type Field = zapcore.Field

type zapLogger struct {
	logger *zap.Logger
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.logger.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.logger.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.logger.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.logger.Error(msg, fields...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{logger: l.logger.With(fields...)}
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}

// NewLogger creates a new Logger. In debug mode it uses a colorized console
// encoder with debug level enabled; otherwise zap's JSON production config.
func NewLogger(debug bool) (Logger, error) {
	var z *zap.Logger
	var err error

	if debug {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		config.Encoding = "console"
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		config.Sampling = nil

		z, err = config.Build(zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		z, err = zap.NewProduction()
	}

	if err != nil {
		return nil, err
	}

	return &zapLogger{logger: z}, nil
}

// NewNopLogger returns a no-op logger that discards all entries.
// Useful for tests.
func NewNopLogger() Logger {
	return &zapLogger{logger: zap.NewNop()}
}

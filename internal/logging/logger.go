package logging

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger shared by handlers and services.
// Arguments after the message are alternating key/value pairs.
type Logger struct {
	z *zap.Logger
	s *zap.SugaredLogger
}

// NewLogger builds a console logger in development and a JSON logger otherwise.
func NewLogger(isDevelopment bool) *Logger {
	if isDevelopment {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		if z, err := c.Build(); err == nil {
			return FromZap(z)
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), zapcore.InfoLevel)
	return FromZap(zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)))
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z: z, s: z.Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return FromZap(zap.NewNop())
}

// WithFields returns a child logger that always includes the given fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return FromZap(l.z.With(zf...))
}

// With returns a child logger that always includes the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	s := l.s.With(args...)
	return &Logger{z: s.Desugar(), s: s}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.s.Debugw(msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.s.Infow(msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.s.Warnw(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.s.Errorw(msg, args...)
}

// Log writes msg at the given level.
func (l *Logger) Log(_ context.Context, level zapcore.Level, msg string, args ...any) {
	switch level {
	case zapcore.DebugLevel:
		l.Debug(msg, args...)
	case zapcore.WarnLevel:
		l.Warn(msg, args...)
	case zapcore.ErrorLevel:
		l.Error(msg, args...)
	default:
		l.Info(msg, args...)
	}
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

// StdLog adapts the logger for APIs that want a *log.Logger, such as
// http.Server.ErrorLog. Entries are written at error level.
func (l *Logger) StdLog() *log.Logger {
	std, err := zap.NewStdLogAt(l.z, zapcore.ErrorLevel)
	if err != nil {
		return zap.NewStdLog(l.z)
	}
	return std
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Package log provides the contextual, key/value logger used throughout the
// wallet synchronizer. It is a thin wrapper over zap, shaped like the
// key/value "logger.Debug(msg, k1, v1, k2, v2, ...)" convention used across
// the codebase's other packages.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module identifies the subsystem a logger is scoped to, purely for the
// "module" field attached to every record.
type Module string

const (
	Sync    Module = "sync"
	Notify  Module = "notify"
	Storage Module = "storage"
	Config  Module = "config"
	Cmd     Module = "cmd"
)

// Logger is the key/value contextual logger interface every package depends
// on. It never panics on a malformed key/value list: an odd trailing value
// is rendered under the key "EXTRA".
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	With(ctx ...interface{}) Logger
}

var base *zap.Logger

func init() {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(zapcore.DebugLevel))
	base = zap.New(core)
}

type moduleLogger struct {
	z *zap.Logger
}

// NewModuleLogger returns a Logger scoped to the given module, matching the
// "logger = log.NewModuleLogger(log.Common)" idiom used package-wide.
func NewModuleLogger(m Module) Logger {
	return &moduleLogger{z: base.With(zap.String("module", string(m)))}
}

func fields(ctx []interface{}) []zap.Field {
	fs := make([]zap.Field, 0, len(ctx)/2+1)
	for i := 0; i+1 < len(ctx); i += 2 {
		key, ok := ctx[i].(string)
		if !ok {
			key = "key"
		}
		fs = append(fs, zap.Any(key, ctx[i+1]))
	}
	if len(ctx)%2 == 1 {
		fs = append(fs, zap.Any("EXTRA", ctx[len(ctx)-1]))
	}
	return fs
}

func (l *moduleLogger) Trace(msg string, ctx ...interface{}) { l.z.Debug(msg, fields(ctx)...) }
func (l *moduleLogger) Debug(msg string, ctx ...interface{}) { l.z.Debug(msg, fields(ctx)...) }
func (l *moduleLogger) Info(msg string, ctx ...interface{})  { l.z.Info(msg, fields(ctx)...) }
func (l *moduleLogger) Warn(msg string, ctx ...interface{})  { l.z.Warn(msg, fields(ctx)...) }
func (l *moduleLogger) Error(msg string, ctx ...interface{}) { l.z.Error(msg, fields(ctx)...) }

func (l *moduleLogger) With(ctx ...interface{}) Logger {
	return &moduleLogger{z: l.z.With(fields(ctx)...)}
}

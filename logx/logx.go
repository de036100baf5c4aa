// Package logx wraps a zap.SugaredLogger behind a small interface so the
// rest of the module depends on a contract rather than a concrete logging
// library.
package logx

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level names accepted in configuration.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is the interface the server package and cmd/httpxd log through.
type Logger interface {
	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)
}

// Options configures a Logger, unpacked from confx's "logging" section.
type Options struct {
	Stdout     bool   `config:"stdout"`
	Level      Level  `config:"level"`
	Filename   string `config:"filename"`
	MaxSizeMB  int    `config:"maxSize"`
	MaxAgeDays int    `config:"maxAge"`
	MaxBackups int    `config:"maxBackups"`
}

type zapLogger struct {
	sugared *zap.SugaredLogger
}

func (l zapLogger) Debugf(template string, args ...any) { l.sugared.Debugf(template, args...) }
func (l zapLogger) Infof(template string, args ...any)   { l.sugared.Infof(template, args...) }
func (l zapLogger) Warnf(template string, args ...any)   { l.sugared.Warnf(template, args...) }
func (l zapLogger) Errorf(template string, args ...any)  { l.sugared.Errorf(template, args...) }

// New builds a Logger from opt. Filename-backed sinks rotate via lumberjack.
func New(opt Options) Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.000Z"))
	}
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	var w zapcore.WriteSyncer
	switch {
	case opt.Stdout || opt.Filename == "":
		w = zapcore.AddSync(os.Stdout)
	default:
		if err := os.MkdirAll(filepath.Dir(opt.Filename), 0o755); err != nil {
			panic(err)
		}
		w = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opt.Filename,
			MaxSize:    opt.MaxSizeMB,
			MaxAge:     opt.MaxAgeDays,
			MaxBackups: opt.MaxBackups,
			LocalTime:  false,
		})
	}

	core := zapcore.NewCore(encoder, w, toZapLevel(opt.Level))
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return zapLogger{sugared: base.Sugar()}
}

var (
	stdOpt = Options{Stdout: true, Level: LevelInfo}
	std    = New(stdOpt)
)

// SetOptions replaces the package-level default logger returned by Std.
func SetOptions(opt Options) {
	stdOpt = opt
	std = New(opt)
}

// Std returns the package-level default Logger.
func Std() Logger { return std }

// Nop returns a Logger that discards everything, useful in tests.
func Nop() Logger { return zapLogger{sugared: zap.NewNop().Sugar()} }

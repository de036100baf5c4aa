package logx

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewStdoutLoggerDoesNotPanic(t *testing.T) {
	log := New(Options{Stdout: true, Level: LevelDebug})
	require.NotNil(t, log)
	log.Debugf("hello %s", "world")
	log.Infof("info")
	log.Warnf("warn")
	log.Errorf("err")
}

func TestNewFileLoggerCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	log := New(Options{Filename: dir + "/nested/app.log", MaxSizeMB: 1, Level: LevelInfo})
	require.NotNil(t, log)
	log.Infof("wrote to rotating file sink")
}

func TestSetOptionsReplacesStd(t *testing.T) {
	defer SetOptions(Options{Stdout: true, Level: LevelInfo})

	SetOptions(Options{Stdout: true, Level: LevelDebug})
	require.NotNil(t, Std())
	Std().Debugf("now visible at debug level")
}

func TestNopDiscardsOutput(t *testing.T) {
	log := Nop()
	require.NotNil(t, log)
	log.Errorf("should not panic or print: %v", 42)
}

func TestToZapLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, toZapLevel(Level("debug")))
}

// Package rlog is the logging facade used by all other packages.
//
// The interface owns the terminal, so the default sink is stderr and the
// host usually redirects it to a file with [SetOutput] (or discards it).
package rlog

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the minimal level of logged messages.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) MarshalText() (text []byte, err error) {
	return []byte(l), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	*l = Level(text)

	switch *l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return nil
	}
	return fmt.Errorf("valid values: %v", []Level{LevelDebug, LevelInfo, LevelWarn, LevelError})
}

func (l Level) zapLevel() zapcore.Level {
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

var (
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger atomic.Pointer[zap.SugaredLogger]
)

func init() {
	logger.Store(newLogger(os.Stderr))
}

func newLogger(w io.Writer) *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)
	return zap.New(core).Sugar()
}

// SetOutput redirects all following messages to w.
func SetOutput(w io.Writer) {
	logger.Store(newLogger(w))
}

// SetLevel drops all following messages below l.
func SetLevel(l Level) {
	level.SetLevel(l.zapLevel())
}

func EnableDebug() {
	SetLevel(LevelDebug)
}

func Debug(v ...any)                 { logger.Load().Debug(v...) }
func Debugf(format string, v ...any) { logger.Load().Debugf(format, v...) }

func Info(v ...any)                 { logger.Load().Info(v...) }
func Infof(format string, v ...any) { logger.Load().Infof(format, v...) }

func Warn(v ...any)                 { logger.Load().Warn(v...) }
func Warnf(format string, v ...any) { logger.Load().Warnf(format, v...) }

func Error(v ...any)                 { logger.Load().Error(v...) }
func Errorf(format string, v ...any) { logger.Load().Errorf(format, v...) }

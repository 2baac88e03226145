// Package logger is a thin facade over one process-wide logrus instance.
// Call Init once at startup; code that logs before Init happens gets a
// panic-level fallback, which keeps package tests silent by default.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// LogLevel names a logrus severity threshold in its string form, as it
// arrives from the --log-level flag.
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	PanicLevel LogLevel = "panic"
	FatalLevel LogLevel = "fatal"
)

// Init configures the shared logger at the given level. A level logrus
// does not recognize falls back to info rather than failing startup.
func Init(level LogLevel) {
	log = logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	parsed, err := logrus.ParseLevel(string(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
}

// Get returns the shared logger, initializing it at panic level when Init
// has not run yet.
func Get() *logrus.Logger {
	if log == nil {
		Init(PanicLevel)
	}
	return log
}

func Debug(args ...any)                 { Get().Debug(args...) }
func Debugf(format string, args ...any) { Get().Debugf(format, args...) }

func Info(args ...any)                 { Get().Info(args...) }
func Infof(format string, args ...any) { Get().Infof(format, args...) }

func Warn(args ...any)                 { Get().Warn(args...) }
func Warnf(format string, args ...any) { Get().Warnf(format, args...) }

func Error(args ...any)                 { Get().Error(args...) }
func Errorf(format string, args ...any) { Get().Errorf(format, args...) }

// Fatal and Fatalf log and then exit the process.
func Fatal(args ...any)                 { Get().Fatal(args...) }
func Fatalf(format string, args ...any) { Get().Fatalf(format, args...) }

// WithField attaches a single structured field to the next log entry.
func WithField(key string, value any) *logrus.Entry {
	return Get().WithField(key, value)
}

// WithFields attaches several structured fields to the next log entry.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Get().WithFields(fields)
}

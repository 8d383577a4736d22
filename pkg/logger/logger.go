// Package logger is a thin facade over logrus shared by all components.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	std.SetLevel(logrus.InfoLevel)
}

// Init configures the process logger. Format is "text" or "json";
// unknown levels fall back to info.
func Init(level, format string) {
	if lv, err := logrus.ParseLevel(level); err == nil {
		std.SetLevel(lv)
	}
	if format == "json" {
		std.SetFormatter(&logrus.JSONFormatter{})
	}
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) { std.SetOutput(w) }

// L returns the underlying logrus logger for advanced use.
func L() *logrus.Logger { return std }

// WithFields returns an entry with structured fields attached.
func WithFields(fields logrus.Fields) *logrus.Entry { return std.WithFields(fields) }

func Debug(args ...any)                 { std.Debug(args...) }
func Debugf(format string, args ...any) { std.Debugf(format, args...) }
func Info(args ...any)                  { std.Info(args...) }
func Infof(format string, args ...any)  { std.Infof(format, args...) }
func Warn(args ...any)                  { std.Warn(args...) }
func Warnf(format string, args ...any)  { std.Warnf(format, args...) }
func Error(args ...any)                 { std.Error(args...) }
func Errorf(format string, args ...any) { std.Errorf(format, args...) }
func Fatalf(format string, args ...any) { std.Fatalf(format, args...) }

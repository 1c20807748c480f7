// Package definition holds the small pluggable pieces every other
// package takes as a dependency rather than constructing itself — here,
// just the Logger.
package definition

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface every component in this server takes
// as a constructor argument instead of reaching for a global.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	Panic(v ...interface{})
	Panicf(format string, v ...interface{})

	// ToggleDebug switches debug-level output on or off, driven by the
	// PMIX_DEBUG environment variable, and returns the new state.
	ToggleDebug(value bool) bool
}

// DefaultLogger is the logger used when the embedding host does not
// provide its own. It backs the same interface the teacher's logger
// exposed with logrus instead of the standard log package, so
// ToggleDebug maps onto a real level change rather than an internal
// flag the formatter has to re-check on every call.
type DefaultLogger struct {
	*logrus.Logger
}

// NewDefaultLogger builds a DefaultLogger writing to stderr at Info
// level.
func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.Out = os.Stderr
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &DefaultLogger{Logger: l}
}

// ToggleDebug implements Logger.
func (l *DefaultLogger) ToggleDebug(value bool) bool {
	if value {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return value
}

// WithPeer returns a child Logger carrying namespace/rank/tag fields,
// used so every log line the reactor and switchyard emit about a given
// request is attributable to a peer without threading identity through
// every call.
func WithPeer(l Logger, namespace string, rank int32, tag uint32) Logger {
	d, ok := l.(*DefaultLogger)
	if !ok {
		return l
	}
	entry := d.Logger.WithFields(logrus.Fields{
		"namespace": namespace,
		"rank":      rank,
		"tag":       tag,
	})
	return &entryLogger{entry: entry}
}

// entryLogger adapts a *logrus.Entry (which carries fields) to Logger.
type entryLogger struct {
	entry *logrus.Entry
}

func (e *entryLogger) Info(v ...interface{})                 { e.entry.Info(v...) }
func (e *entryLogger) Infof(f string, v ...interface{})      { e.entry.Infof(f, v...) }
func (e *entryLogger) Warn(v ...interface{})                  { e.entry.Warn(v...) }
func (e *entryLogger) Warnf(f string, v ...interface{})      { e.entry.Warnf(f, v...) }
func (e *entryLogger) Error(v ...interface{})                 { e.entry.Error(v...) }
func (e *entryLogger) Errorf(f string, v ...interface{})     { e.entry.Errorf(f, v...) }
func (e *entryLogger) Debug(v ...interface{})                 { e.entry.Debug(v...) }
func (e *entryLogger) Debugf(f string, v ...interface{})     { e.entry.Debugf(f, v...) }
func (e *entryLogger) Fatal(v ...interface{})                 { e.entry.Fatal(v...) }
func (e *entryLogger) Fatalf(f string, v ...interface{})     { e.entry.Fatalf(f, v...) }
func (e *entryLogger) Panic(v ...interface{})                 { e.entry.Panic(v...) }
func (e *entryLogger) Panicf(f string, v ...interface{})     { e.entry.Panicf(f, v...) }
func (e *entryLogger) ToggleDebug(value bool) bool {
	if value {
		e.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		e.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return value
}

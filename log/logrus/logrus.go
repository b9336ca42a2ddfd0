// Package logrus adapts a *logrus.Entry to flowcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/flowcache"
)

var _ flowcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l with no preset fields.
func New(l *logrus.Logger) Logger { return Logger{E: logrus.NewEntry(l)} }

func (l Logger) Debug(msg string, f flowcache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f flowcache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f flowcache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f flowcache.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f flowcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	return l.E.WithFields(logrus.Fields(f))
}

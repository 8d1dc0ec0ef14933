package vmtree

import "github.com/sirupsen/logrus"

// LogrusLogger adapts a logrus.FieldLogger to the engine's small Logger
// capability, used in production; tests use interfaces.NopLogger instead.
type LogrusLogger struct {
	entry logrus.FieldLogger
}

// NewLogrusLogger wraps l, tagging every entry with component=vmtree.
func NewLogrusLogger(l logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{entry: l.WithField("component", "vmtree")}
}

func (g *LogrusLogger) Debugf(format string, args ...interface{}) { g.entry.Debugf(format, args...) }
func (g *LogrusLogger) Infof(format string, args ...interface{})  { g.entry.Infof(format, args...) }
func (g *LogrusLogger) Warnf(format string, args ...interface{})  { g.entry.Warnf(format, args...) }
func (g *LogrusLogger) Errorf(format string, args ...interface{}) { g.entry.Errorf(format, args...) }

package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogrusLogger implements Logger on top of a logrus.FieldLogger.
// Key-value pairs become logrus fields.
type LogrusLogger struct {
	logger logrus.FieldLogger
}

var _ Logger = (*LogrusLogger)(nil)

// NewLogrus wraps l. A nil l means logrus.StandardLogger().
func NewLogrus(l logrus.FieldLogger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{logger: l}
}

func (l *LogrusLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, keysAndValues ...any) {
	l.logger.WithFields(fields(keysAndValues)).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, keysAndValues ...any) {
	l.logger.WithFields(fields(keysAndValues)).Error(msg)
}

// fields converts alternating key-value pairs; a dangling key maps to "<missing>".
func fields(keysAndValues []any) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 < len(keysAndValues) {
			f[key] = keysAndValues[i+1]
		} else {
			f[key] = "<missing>"
		}
	}
	return f
}

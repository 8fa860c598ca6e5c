package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// LogrusLogger adapts Logger onto github.com/sirupsen/logrus, giving the
// corpus's more common structured-logging library a home alongside the
// teacher's text/JSONL pair.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps an existing *logrus.Logger. A nil logger uses
// logrus.StandardLogger().
func NewLogrusLogger(base *logrus.Logger) *LogrusLogger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(base)}
}

func (l *LogrusLogger) LogInfo(msg string) {
	l.entry.Info(msg)
}

func (l *LogrusLogger) LogError(msg string, err error) {
	l.entry.WithError(err).Error(msg)
}

func (l *LogrusLogger) LogOp(op string, duration time.Duration, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).WithField("op", op).WithField("duration", duration.String()).Info(op)
}

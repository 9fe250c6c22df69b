package watcher

import (
	"github.com/sirupsen/logrus"
)

// Logger is the sink watch notices are written to. Implementations stamp
// each line with local time; failures are swallowed.
type Logger interface {
	Logf(format string, args ...interface{})
}

// timestampFormat matches the dd-mm-yyyy hh:mm:ss stamp the daemon has
// always logged with.
const timestampFormat = "02-01-2006 15:04:05"

type logrusLogger struct {
	logger *logrus.Logger
}

// NewLogger returns the default notice sink: a logrus logger writing
// full-timestamped lines to stderr.
func NewLogger() Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
	})
	return &logrusLogger{logger: logger}
}

func (l *logrusLogger) Logf(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

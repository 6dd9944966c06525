// Package logger holds the process-wide logrus logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

// Init sets the output and format. Debug mode logs at debug level in
// human-readable text; otherwise entries are JSON at info level with a
// "message" key, which log shippers expect.
func Init(debug bool, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	base.SetOutput(out)

	if debug {
		base.SetLevel(logrus.DebugLevel)
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.DateTime,
		})
		return
	}
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "message"},
	})
}

// Log returns an entry on the shared logger.
func Log() *logrus.Entry {
	return logrus.NewEntry(base)
}

// Component tags entries with the subsystem that emitted them.
func Component(name string) *logrus.Entry {
	return Log().WithField("component", name)
}

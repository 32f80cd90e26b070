package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Key constants for structured log fields.
const (
	KeyComponent  = "component"
	KeySessionID  = "sessionId"
	KeyRecordID   = "recordId"
	KeyStage      = "stage"
	KeyDurationMs = "durationMs"
	KeyError      = "error"
)

var root = newRoot()

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Init configures the shared logger. Loggers returned by L before Init pick
// up the new settings because they share the same *logrus.Logger.
// format: "json" or "text" (default "text")
// level: "debug", "info", "warn", "error" (default "info")
// output: writer to log to (nil = os.Stdout)
func Init(format, level string, output io.Writer) {
	if output == nil {
		output = os.Stdout
	}
	root.SetOutput(output)
	root.SetLevel(parseLevel(level))

	if strings.EqualFold(format, "json") {
		root.SetFormatter(&logrus.JSONFormatter{})
	} else {
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// L returns a logger tagged with the given component name.
func L(component string) *logrus.Entry {
	return root.WithField(KeyComponent, component)
}

// WithSession attaches a capture session id.
func WithSession(e *logrus.Entry, sessionID string) *logrus.Entry {
	return e.WithField(KeySessionID, sessionID)
}

// WithRecord attaches a persisted record id.
func WithRecord(e *logrus.Entry, recordID string) *logrus.Entry {
	return e.WithField(KeyRecordID, recordID)
}

func parseLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

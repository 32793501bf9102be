package logger

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Logger provides structured logging across the application
type Logger struct {
	component string
	keyvals   []interface{}
}

// root holds the level for every component logger, children are derived per call
// so SetLevel applies to loggers created before it ran.
var root = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "2006-01-02 15:04:05",
})

// New creates a new logger for a specific component
func New(component string) *Logger {
	return &Logger{component: component}
}

// SetLevel changes the level of every component logger. Unknown names fall back to info.
func SetLevel(level string) {
	parsed, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = log.InfoLevel
	}
	root.SetLevel(parsed)
}

// GenerateID creates a short unique identifier for operation tracing
func GenerateID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Component returns the prefix this logger was created with
func (l *Logger) Component() string {
	return l.component
}

// With returns a logger that always carries the given key/value pairs
func (l *Logger) With(keyvals ...interface{}) *Logger {
	merged := make([]interface{}, 0, len(l.keyvals)+len(keyvals))
	merged = append(merged, l.keyvals...)
	merged = append(merged, keyvals...)
	return &Logger{component: l.component, keyvals: merged}
}

func (l *Logger) log(level log.Level, message string, keyvals []interface{}) {
	if len(l.keyvals) > 0 {
		keyvals = append(append([]interface{}{}, l.keyvals...), keyvals...)
	}
	root.WithPrefix(l.component).Log(level, message, keyvals...)
}

func (l *Logger) Debug(message string, keyvals ...interface{}) {
	l.log(log.DebugLevel, message, keyvals)
}

func (l *Logger) Info(message string, keyvals ...interface{}) {
	l.log(log.InfoLevel, message, keyvals)
}

func (l *Logger) Warn(message string, keyvals ...interface{}) {
	l.log(log.WarnLevel, message, keyvals)
}

func (l *Logger) Error(message string, keyvals ...interface{}) {
	l.log(log.ErrorLevel, message, keyvals)
}

// Fatal logs at fatal level and exits the process
func (l *Logger) Fatal(message string, keyvals ...interface{}) {
	l.log(log.FatalLevel, message, keyvals)
	os.Exit(1)
}

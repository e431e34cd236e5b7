// Package logging provides the structured logger shared by the vendor,
// mirror, and client daemons: leveled, optionally JSON-formatted, with
// per-component tagging (the vendor and mirror services tag their lines
// "vendorsvc" and "mirrorsvc") so a single log file can be split into
// per-daemon trails.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is a logging severity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a case-insensitive level name.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// Format selects the wire shape of emitted log lines.
type Format int

const (
	TextFormat Format = iota
	JSONFormat
)

// Entry is a single emitted log line.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger is a leveled, component-tagged logger writing to a single output.
type Logger struct {
	mu        sync.RWMutex
	level     Level
	format    Format
	output    io.Writer
	component string
}

// Config configures a Logger.
type Config struct {
	Level     Level
	Format    Format
	Output    io.Writer
	Component string
}

// DefaultConfig returns the default text-format, stdout, info-level config.
func DefaultConfig() *Config {
	return &Config{Level: InfoLevel, Format: TextFormat, Output: os.Stdout}
}

// New creates a Logger from config, falling back to DefaultConfig() if nil.
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	return &Logger{level: config.Level, format: config.Format, output: config.Output, component: config.Component}
}

// WithComponent returns a copy of l tagged with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{level: l.level, format: l.format, output: l.output, component: component}
}

// SetLevel changes the minimum level that will be emitted.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) enabled(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func (l *Logger) write(level Level, message string, fields map[string]interface{}) {
	if !l.enabled(level) {
		return
	}

	l.mu.RLock()
	format, output, component := l.format, l.output, l.component
	l.mu.RUnlock()

	entry := Entry{Timestamp: time.Now(), Level: level.String(), Component: component, Message: message, Fields: fields}

	var line string
	if format == JSONFormat {
		data, _ := json.Marshal(entry)
		line = string(data) + "\n"
	} else {
		line = formatText(entry)
	}
	output.Write([]byte(line))
}

func formatText(e Entry) string {
	var b strings.Builder
	b.WriteString(e.Timestamp.Format("2006-01-02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(e.Level)
	b.WriteByte(']')
	if e.Component != "" {
		b.WriteByte(' ')
		b.WriteString(e.Component)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)
	for k, v := range e.Fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	b.WriteByte('\n')
	return b.String()
}

func (l *Logger) Debug(message string) { l.write(DebugLevel, message, nil) }
func (l *Logger) Info(message string)  { l.write(InfoLevel, message, nil) }
func (l *Logger) Warn(message string)  { l.write(WarnLevel, message, nil) }
func (l *Logger) Error(message string) { l.write(ErrorLevel, message, nil) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.write(DebugLevel, fmt.Sprintf(format, args...), nil) }
func (l *Logger) Infof(format string, args ...interface{})  { l.write(InfoLevel, fmt.Sprintf(format, args...), nil) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.write(WarnLevel, fmt.Sprintf(format, args...), nil) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.write(ErrorLevel, fmt.Sprintf(format, args...), nil) }

// WithFields returns a logger-like wrapper that attaches fields to every entry.
func (l *Logger) WithFields(fields map[string]interface{}) *FieldLogger {
	f := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	return &FieldLogger{logger: l, fields: f}
}

// FieldLogger is a Logger bound to a fixed set of fields.
type FieldLogger struct {
	logger *Logger
	fields map[string]interface{}
}

func (fl *FieldLogger) Debug(message string) { fl.logger.write(DebugLevel, message, fl.fields) }
func (fl *FieldLogger) Info(message string)  { fl.logger.write(InfoLevel, message, fl.fields) }
func (fl *FieldLogger) Warn(message string)  { fl.logger.write(WarnLevel, message, fl.fields) }
func (fl *FieldLogger) Error(message string) { fl.logger.write(ErrorLevel, message, fl.fields) }

// OpenFileOutput opens (creating parent directories as needed) an
// append-only log file, suitable for a daemon's -log-file option.
func OpenFileOutput(filename string) (io.Writer, error) {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

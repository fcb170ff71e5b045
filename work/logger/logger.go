package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// Options controls where log output goes. The zero value writes colorized
// console output to stderr at INFO.
type Options struct {
	Level   string
	JSON    bool
	File    string // optional rotating log file, tee'd with the console
	Out     io.Writer
	NoColor bool
}

var (
	mu      sync.RWMutex
	base    = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	level   = INFO
	rotator *lumberjack.Logger

	defaultLogger = &Logger{}
)

// Logger is a leveled logger bound to a component name.
type Logger struct {
	component string
}

// Init configures the process-wide log output. It may be called again to
// reconfigure, for example after flags are parsed.
func Init(opts Options) error {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var w io.Writer = out
	if !opts.JSON {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor || runtime.GOOS == "windows",
		}
	}

	mu.Lock()
	defer mu.Unlock()

	if rotator != nil {
		rotator.Close()
		rotator = nil
	}
	if opts.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
		}
		w = zerolog.MultiLevelWriter(w, rotator)
	}

	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.999Z0700"
	base = zerolog.New(w).With().Timestamp().Logger()
	level = ParseLogLevel(opts.Level)
	return nil
}

// Close flushes and releases the rotating log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	return err
}

// New creates a Logger that tags every line with component.
func New(component string) *Logger {
	return &Logger{component: component}
}

// ParseLogLevel converts string to LogLevel
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(l string) {
	mu.Lock()
	defer mu.Unlock()
	level = ParseLogLevel(l)
}

// GetLogLevel returns current log level as string
func GetLogLevel() string {
	mu.RLock()
	defer mu.RUnlock()
	return level.String()
}

func shouldLog(l LogLevel) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func (l *Logger) log(lvl LogLevel, format string, v ...interface{}) {
	if !shouldLog(lvl) {
		return
	}

	mu.RLock()
	zl := base
	mu.RUnlock()

	message := fmt.Sprintf(format, v...)
	event := zl.WithLevel(lvl.zerolog())
	if l.component != "" {
		event = event.Str("component", l.component)
	}
	event.Msg(message)

	diagnostics.add(lvl, l.component, message)
}

// Debug logs debug level messages
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(DEBUG, format, v...)
}

// Info logs info level messages
func (l *Logger) Info(format string, v ...interface{}) {
	l.log(INFO, format, v...)
}

// Warn logs warning level messages
func (l *Logger) Warn(format string, v ...interface{}) {
	l.log(WARN, format, v...)
}

// Error logs error level messages
func (l *Logger) Error(format string, v ...interface{}) {
	l.log(ERROR, format, v...)
}

// Package-level functions (for direct use like logger.Info())

// Debug logs debug level messages (package-level)
func Debug(format string, v ...interface{}) {
	defaultLogger.Debug(format, v...)
}

// Info logs info level messages (package-level)
func Info(format string, v ...interface{}) {
	defaultLogger.Info(format, v...)
}

// Warn logs warning level messages (package-level)
func Warn(format string, v ...interface{}) {
	defaultLogger.Warn(format, v...)
}

// Error logs error level messages (package-level)
func Error(format string, v ...interface{}) {
	defaultLogger.Error(format, v...)
}

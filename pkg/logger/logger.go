package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/SIMPLYBOYS/sage_mining/internal/errors"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var zapLevels = map[LogLevel]zapcore.Level{
	DEBUG: zapcore.DebugLevel,
	INFO:  zapcore.InfoLevel,
	WARN:  zapcore.WarnLevel,
	ERROR: zapcore.ErrorLevel,
	FATAL: zapcore.FatalLevel,
}

// ParseLevel maps a textual level to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG":
		return DEBUG
	case "warn", "WARN":
		return WARN
	case "error", "ERROR":
		return ERROR
	default:
		return INFO
	}
}

type Logger struct {
	level   zap.AtomicLevel
	encoder zapcore.Encoder
	cores   []zapcore.Core
	sugar   *zap.SugaredLogger
	mu      sync.Mutex
}

var (
	defaultLogger *Logger
	once          sync.Once
)

func init() {
	once.Do(func() {
		defaultLogger = NewLogger(INFO, os.Stdout, false)
	})
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	if development {
		cfg = zap.NewDevelopmentEncoderConfig()
	}
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// NewLogger creates a new Logger writing to output. Development mode switches to
// the human readable console encoder.
func NewLogger(level LogLevel, output zapcore.WriteSyncer, development bool) *Logger {
	atom := zap.NewAtomicLevelAt(zapLevels[level])
	var enc zapcore.Encoder
	if development {
		enc = zapcore.NewConsoleEncoder(encoderConfig(true))
	} else {
		enc = zapcore.NewJSONEncoder(encoderConfig(false))
	}
	l := &Logger{
		level:   atom,
		encoder: enc,
		cores:   []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(output), atom)},
	}
	l.build()
	return l
}

func (l *Logger) build() {
	core := zapcore.NewTee(l.cores...)
	l.sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)).Sugar()
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(zapLevels[level])
}

// EnableFileLogging tees every entry into a daily file under directory.
func (l *Logger) EnableFileLogging(directory string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile := filepath.Join(directory, fmt.Sprintf("app_%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.cores = append(l.cores, zapcore.NewCore(l.encoder.Clone(), zapcore.Lock(file), l.level))
	l.build()
	return nil
}

func (l *Logger) log(level LogLevel, format string, v ...interface{}) {
	l.mu.Lock()
	sugar := l.sugar
	l.mu.Unlock()

	switch level {
	case DEBUG:
		sugar.Debugf(format, v...)
	case INFO:
		sugar.Infof(format, v...)
	case WARN:
		sugar.Warnf(format, v...)
	case ERROR:
		sugar.Errorf(format, v...)
	case FATAL:
		sugar.Fatalf(format, v...)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(DEBUG, format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.log(INFO, format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.log(WARN, format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.log(ERROR, format, v...)
}

// Fatal logs a fatal message and exits the program
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.log(FATAL, format, v...)
}

// Errorf logs an error message and returns an error
func (l *Logger) Errorf(err error, format string, v ...interface{}) error {
	msg := fmt.Sprintf(format, v...)
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	l.log(ERROR, "%s", wrappedErr.Error())
	return wrappedErr
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sugar.Sync()
}

// Global functions that use the default logger

// Configure replaces the default logger.
func Configure(level LogLevel, development bool) {
	defaultLogger = NewLogger(level, os.Stdout, development)
}

// SetLevel sets the logging level for the default logger
func SetLevel(level LogLevel) {
	defaultLogger.SetLevel(level)
}

// EnableFileLogging enables file logging for the default logger
func EnableFileLogging(directory string) error {
	return defaultLogger.EnableFileLogging(directory)
}

// Debug logs a debug message using the default logger
func Debug(format string, v ...interface{}) {
	defaultLogger.Debug(format, v...)
}

// Info logs an info message using the default logger
func Info(format string, v ...interface{}) {
	defaultLogger.Info(format, v...)
}

// Warn logs a warning message using the default logger
func Warn(format string, v ...interface{}) {
	defaultLogger.Warn(format, v...)
}

// Error logs an error message using the default logger
func Error(format string, v ...interface{}) {
	defaultLogger.Error(format, v...)
}

// Fatal logs a fatal message and exits the program using the default logger
func Fatal(format string, v ...interface{}) {
	defaultLogger.Fatal(format, v...)
}

// Errorf logs an error message and returns an error using the default logger
func Errorf(err error, format string, v ...interface{}) error {
	return defaultLogger.Errorf(err, format, v...)
}

// Sync flushes the default logger.
func Sync() error {
	return defaultLogger.Sync()
}

// LogError logs err with the detail its concrete type carries.
func LogError(err error) {
	switch e := err.(type) {
	case *errors.DatabaseError:
		Error("Database error during %s: %v", e.Operation, e.Err)
	case *errors.WebSocketError:
		Error("WebSocket error during %s: %v", e.Operation, e.Err)
	case *errors.APIError:
		Error("API error (status %d): %s - %v", e.StatusCode, e.Message, e.Err)
	case errors.Coded:
		Warn("Request rejected (%s): %v", e.Code(), e)
	default:
		Error("Unexpected error: %v", err)
	}
}

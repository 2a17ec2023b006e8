// Package logger provides the process-wide structured logger.
package logger

import (
	"strings"
	"sync"
)

// Log levels used across the application.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	// globalLogger holds the singleton logger instance.
	globalLogger *Logger
	once         sync.Once
)

// Get returns a singleton logger configured with the provided level.
// The first call initializes the logger; subsequent calls ignore the level
// and return the already initialized instance.
func Get(level string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(NormalizeLevel(level))
	})
	return globalLogger
}

// New returns an independent logger at the given level.
func New(level string) *Logger {
	return newZapLogger(NormalizeLevel(level))
}

// NormalizeLevel maps syslog-style names (LOG_DEBUG, LOG_ERR, ...) that older
// config files use onto the level constants. Unknown names pass through.
func NormalizeLevel(level string) string {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "LOG_DEBUG", "DEBUG":
		return DebugLevel
	case "LOG_INFO", "LOG_NOTICE", "INFO":
		return InfoLevel
	case "LOG_WARNING", "WARN", "WARNING":
		return WarnLevel
	case "LOG_ERR", "LOG_CRIT", "LOG_ALERT", "LOG_EMERG", "ERROR":
		return ErrorLevel
	}
	return level
}

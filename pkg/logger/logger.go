// Package logger provides component-scoped structured logging on top of zerolog.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init replaces the output writer. Pretty output uses zerolog's console writer.
func Init(w io.Writer, pretty bool) {
	if w == nil {
		w = os.Stderr
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	mu.Lock()
	base = zerolog.New(w).With().Timestamp().Logger()
	mu.Unlock()
}

func SetLevel(level Level) {
	zerolog.SetGlobalLevel(toZerolog(level))
}

func GetLevel() Level {
	switch zerolog.GlobalLevel() {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return DEBUG
	case zerolog.WarnLevel:
		return WARN
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return ERROR
	default:
		return INFO
	}
}

// ParseLevel maps "debug", "info", "warn" and "error". Anything else is INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func toZerolog(level Level) zerolog.Level {
	switch level {
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

func emit(level Level, component, msg string, fields map[string]any) {
	mu.RLock()
	l := base
	mu.RUnlock()

	ev := l.WithLevel(toZerolog(level))
	if ev == nil {
		return
	}
	if component != "" {
		ev = ev.Str("component", component)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(msg)
}

func DebugC(component, msg string) { emit(DEBUG, component, msg, nil) }

func DebugCF(component, msg string, fields map[string]any) {
	emit(DEBUG, component, msg, fields)
}

func InfoC(component, msg string) { emit(INFO, component, msg, nil) }

func InfoCF(component, msg string, fields map[string]any) {
	emit(INFO, component, msg, fields)
}

func WarnC(component, msg string) { emit(WARN, component, msg, nil) }

func WarnCF(component, msg string, fields map[string]any) {
	emit(WARN, component, msg, fields)
}

func ErrorC(component, msg string) { emit(ERROR, component, msg, nil) }

func ErrorCF(component, msg string, fields map[string]any) {
	emit(ERROR, component, msg, fields)
}

package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	charm "github.com/charmbracelet/log"
)

// Component-tagged logging facade. Every call site names the subsystem it logs
// for ("session", "webhook", "broker", ...) so operators can follow one
// session's lifecycle across packages.

var (
	mu      sync.RWMutex
	backend = newBackend(os.Stderr, charm.InfoLevel)
)

func newBackend(w io.Writer, level charm.Level) *charm.Logger {
	return charm.NewWithOptions(w, charm.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
}

// Configure resets the global backend. Level is one of debug, info, warn,
// error; anything else keeps info.
func Configure(w io.Writer, level string) {
	if w == nil {
		w = os.Stderr
	}
	mu.Lock()
	backend = newBackend(w, parseLevel(level))
	mu.Unlock()
}

func parseLevel(level string) charm.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return charm.DebugLevel
	case "warn", "warning":
		return charm.WarnLevel
	case "error":
		return charm.ErrorLevel
	default:
		return charm.InfoLevel
	}
}

func component(name string) *charm.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return backend.WithPrefix(name)
}

func flatten(fields map[string]interface{}) []interface{} {
	kvs := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kvs = append(kvs, k, v)
	}
	return kvs
}

func DebugC(comp, msg string) { component(comp).Debug(msg) }
func InfoC(comp, msg string)  { component(comp).Info(msg) }
func WarnC(comp, msg string)  { component(comp).Warn(msg) }
func ErrorC(comp, msg string) { component(comp).Error(msg) }

func DebugCF(comp, msg string, fields map[string]interface{}) {
	component(comp).Debug(msg, flatten(fields)...)
}

func InfoCF(comp, msg string, fields map[string]interface{}) {
	component(comp).Info(msg, flatten(fields)...)
}

func WarnCF(comp, msg string, fields map[string]interface{}) {
	component(comp).Warn(msg, flatten(fields)...)
}

func ErrorCF(comp, msg string, fields map[string]interface{}) {
	component(comp).Error(msg, flatten(fields)...)
}

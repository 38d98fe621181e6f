// Package logging provides structured logging using Go's slog package.
package logging

import (
	"log/slog"
	"os"
	"time"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	// Initialize with a default logger (text format, Info level)
	InitLogger(LevelInfo, FormatText)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatText outputs logs in human-readable text format.
	FormatText Format = iota
	// FormatJSON outputs logs in JSON format.
	FormatJSON
)

// InitLogger initializes the global logger with the specified level and format.
func InitLogger(level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// Helper functions for common logging patterns

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// ConversionEvent logs a conversion lifecycle event with common fields.
func ConversionEvent(event, mode string, elementCount int, duration time.Duration, args ...any) {
	allArgs := []any{
		"event", event,
		"mode", mode,
		"element_count", elementCount,
		"duration_ms", duration.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("conversion_event", allArgs...)
}

// ClassificationMiss logs an element that no cascade stage could classify.
func ClassificationMiss(elementID, elementType string, args ...any) {
	allArgs := []any{
		"element_id", elementID,
		"element_type", elementType,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Warn("classification_miss", allArgs...)
}

// DedupHit logs a duplicate element suppressed by the deduplicator.
func DedupHit(stage, elementID string, args ...any) {
	allArgs := []any{
		"stage", stage,
		"element_id", elementID,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("dedup_hit", allArgs...)
}

// FallbackEvent logs a hybrid-mode fallback with its trigger.
func FallbackEvent(reason string, fallbackCount int, args ...any) {
	allArgs := []any{
		"reason", reason,
		"fallback_count", fallbackCount,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Warn("fallback_event", allArgs...)
}

// ServerStartup logs server startup information.
func ServerStartup(serverType string, port int, args ...any) {
	allArgs := []any{
		"server_type", serverType,
		"port", port,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("server_startup", allArgs...)
}

// WebSocketEvent logs WebSocket events.
func WebSocketEvent(event string, clientCount int, args ...any) {
	allArgs := []any{
		"event", event,
		"client_count", clientCount,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("websocket_event", allArgs...)
}

// SNAP - Schnorr-Native Agent Protocol
// Copyright (C) 2026 snap-protocol
//
// This file is part of SNAP.
//
// SNAP is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SNAP is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SNAP. If not, see <https://www.gnu.org/licenses/>.

// Package logger provides the structured JSON logger used across the SDK.
package logger

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of a log level.
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

// Field is a structured logging field.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an integer field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Bool creates a boolean field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Error creates an error field.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger is the interface the SDK logs through.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	WithFields(fields ...Field) Logger
	SetLevel(level Level)
	GetLevel() Level
}

// StructuredLogger implements Logger with one JSON object per line.
type StructuredLogger struct {
	mu         sync.RWMutex
	level      Level
	output     io.Writer
	baseFields []Field
	timeFormat string
}

// NewLogger creates a logger writing to output at the given level.
func NewLogger(output io.Writer, level Level) *StructuredLogger {
	return &StructuredLogger{
		level:      level,
		output:     output,
		timeFormat: time.RFC3339,
	}
}

// NewDefaultLogger creates a stdout logger honoring SNAP_LOG_LEVEL.
func NewDefaultLogger() *StructuredLogger {
	level := InfoLevel
	switch strings.ToUpper(os.Getenv("SNAP_LOG_LEVEL")) {
	case "DEBUG":
		level = DebugLevel
	case "INFO":
		level = InfoLevel
	case "WARN":
		level = WarnLevel
	case "ERROR":
		level = ErrorLevel
	}
	return NewLogger(os.Stdout, level)
}

var (
	defaultLogger *StructuredLogger
	defaultOnce   sync.Once
)

// GetDefaultLogger returns the process-wide default logger.
func GetDefaultLogger() Logger {
	defaultOnce.Do(func() {
		defaultLogger = NewDefaultLogger()
	})
	return defaultLogger
}

// Debug logs a debug level message.
func (l *StructuredLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }

// Info logs an info level message.
func (l *StructuredLogger) Info(msg string, fields ...Field) { l.log(InfoLevel, msg, fields...) }

// Warn logs a warning level message.
func (l *StructuredLogger) Warn(msg string, fields ...Field) { l.log(WarnLevel, msg, fields...) }

// Error logs an error level message.
func (l *StructuredLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }

// WithFields returns a new logger that carries additional base fields.
func (l *StructuredLogger) WithFields(fields ...Field) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	merged := make([]Field, len(l.baseFields)+len(fields))
	copy(merged, l.baseFields)
	copy(merged[len(l.baseFields):], fields)

	return &StructuredLogger{
		level:      l.level,
		output:     l.output,
		baseFields: merged,
		timeFormat: l.timeFormat,
	}
}

// SetLevel sets the minimum log level.
func (l *StructuredLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level.
func (l *StructuredLogger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *StructuredLogger) log(level Level, msg string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if level < l.level {
		return
	}

	entry := make(map[string]interface{}, len(l.baseFields)+len(fields)+3)
	entry["timestamp"] = time.Now().Format(l.timeFormat)
	entry["level"] = level.String()
	entry["message"] = msg
	for _, f := range l.baseFields {
		entry[f.Key] = f.Value
	}
	for _, f := range fields {
		entry[f.Key] = f.Value
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = l.output.Write(data)
}

// Package logger provides structured, leveled logging for chronicle
// components. It wraps zerolog behind a small interface so packages can
// log through typed fields without binding to a concrete backend.
package logger

import (
	"fmt"
	"strings"
	"time"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	TraceLevel LogLevel = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
	Disabled
)

// String returns the lowercase name of the level.
func (l LogLevel) String() string {
	switch l {
	case TraceLevel:
		return "trace"
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name into a LogLevel. It accepts the
// usual aliases ("warning", "off") and is case-insensitive.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TraceLevel, nil
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	case "off", "disabled":
		return Disabled, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %q", s)
	}
}

// OutputFormat selects how log records are rendered.
type OutputFormat int

const (
	// JSONFormat renders one JSON object per line. Default for servers.
	JSONFormat OutputFormat = iota
	// ConsoleFormat renders human-readable colored output for terminals.
	ConsoleFormat
)

// ParseFormat converts a format name into an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return JSONFormat, nil
	case "console", "text":
		return ConsoleFormat, nil
	default:
		return JSONFormat, fmt.Errorf("unknown log format: %q", s)
	}
}

// FieldType discriminates the value stored in a TypedField.
type FieldType int

const (
	StringType FieldType = iota
	IntType
	Int64Type
	Float64Type
	BoolType
	ErrType
	TimeType
	DurationType
	AnyType
)

// TypedField is a strongly typed key/value pair attached to a log
// record. Constructing fields instead of passing interface{} pairs
// keeps call sites checkable and avoids fmt round-trips.
type TypedField struct {
	Key      string
	Type     FieldType
	Str      string
	Int      int64
	Float    float64
	Bool     bool
	Err      error
	Time     time.Time
	Duration time.Duration
	Any      interface{}
}

// String creates a string field.
func String(key, value string) TypedField {
	return TypedField{Key: key, Type: StringType, Str: value}
}

// Int creates an int field.
func Int(key string, value int) TypedField {
	return TypedField{Key: key, Type: IntType, Int: int64(value)}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) TypedField {
	return TypedField{Key: key, Type: Int64Type, Int: value}
}

// Float64 creates a float64 field.
func Float64(key string, value float64) TypedField {
	return TypedField{Key: key, Type: Float64Type, Float: value}
}

// Bool creates a bool field.
func Bool(key string, value bool) TypedField {
	return TypedField{Key: key, Type: BoolType, Bool: value}
}

// Err creates an error field under the conventional "error" key.
func Err(err error) TypedField {
	return TypedField{Key: "error", Type: ErrType, Err: err}
}

// NamedErr creates an error field under a caller-chosen key.
func NamedErr(key string, err error) TypedField {
	return TypedField{Key: key, Type: ErrType, Err: err}
}

// Time creates a time field.
func Time(key string, value time.Time) TypedField {
	return TypedField{Key: key, Type: TimeType, Time: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) TypedField {
	return TypedField{Key: key, Type: DurationType, Duration: value}
}

// Any creates a field holding an arbitrary value. Prefer the typed
// constructors when the type is known.
func Any(key string, value interface{}) TypedField {
	return TypedField{Key: key, Type: AnyType, Any: value}
}

// Logger is the logging interface used throughout chronicle.
type Logger interface {
	Trace(msg string, fields ...TypedField)
	Debug(msg string, fields ...TypedField)
	Info(msg string, fields ...TypedField)
	Warn(msg string, fields ...TypedField)
	Error(msg string, fields ...TypedField)
	Fatal(msg string, fields ...TypedField)

	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	// WithSubsystem returns a derived logger tagged with a subsystem
	// name. Derived loggers share the parent's outputs.
	WithSubsystem(name string) Logger

	// WithFields returns a derived logger that attaches the given
	// fields to every record it emits.
	WithFields(fields ...TypedField) Logger

	// IsLevelEnabled reports whether records at the given level would
	// be written. Use it to skip expensive field construction.
	IsLevelEnabled(level LogLevel) bool

	// Close releases any resources held by the logger's outputs.
	Close() error
}

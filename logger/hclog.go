package logger

import (
	"fmt"
	"io"
	"log"

	"github.com/hashicorp/go-hclog"
)

// HCLogAdapter exposes a chronicle Logger through the hclog.Logger
// interface so hashicorp libraries (retryablehttp in particular) can
// log into the same stream as the rest of the process.
type HCLogAdapter struct {
	logger  Logger
	name    string
	implied []interface{}
}

var _ hclog.Logger = (*HCLogAdapter)(nil)

// NewHCLogAdapter wraps logger in an hclog-compatible shim.
func NewHCLogAdapter(logger Logger, name string) *HCLogAdapter {
	if name != "" {
		logger = logger.WithSubsystem(name)
	}
	return &HCLogAdapter{logger: logger, name: name}
}

// argsToFields converts hclog's alternating key/value args into typed
// fields. A trailing key without a value is kept with a nil value.
func argsToFields(args []interface{}) []TypedField {
	fields := make([]TypedField, 0, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		if i+1 >= len(args) {
			fields = append(fields, Any(key, nil))
			break
		}
		switch v := args[i+1].(type) {
		case string:
			fields = append(fields, String(key, v))
		case int:
			fields = append(fields, Int(key, v))
		case int64:
			fields = append(fields, Int64(key, v))
		case float64:
			fields = append(fields, Float64(key, v))
		case bool:
			fields = append(fields, Bool(key, v))
		case error:
			fields = append(fields, NamedErr(key, v))
		default:
			fields = append(fields, Any(key, v))
		}
	}
	return fields
}

func (a *HCLogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Trace:
		a.Trace(msg, args...)
	case hclog.Debug:
		a.Debug(msg, args...)
	case hclog.Info:
		a.Info(msg, args...)
	case hclog.Warn:
		a.Warn(msg, args...)
	case hclog.Error:
		a.Error(msg, args...)
	default:
		a.Info(msg, args...)
	}
}

func (a *HCLogAdapter) Trace(msg string, args ...interface{}) {
	a.logger.Trace(msg, a.fields(args)...)
}

func (a *HCLogAdapter) Debug(msg string, args ...interface{}) {
	a.logger.Debug(msg, a.fields(args)...)
}

func (a *HCLogAdapter) Info(msg string, args ...interface{}) {
	a.logger.Info(msg, a.fields(args)...)
}

func (a *HCLogAdapter) Warn(msg string, args ...interface{}) {
	a.logger.Warn(msg, a.fields(args)...)
}

func (a *HCLogAdapter) Error(msg string, args ...interface{}) {
	a.logger.Error(msg, a.fields(args)...)
}

func (a *HCLogAdapter) fields(args []interface{}) []TypedField {
	if len(a.implied) == 0 {
		return argsToFields(args)
	}
	merged := make([]interface{}, 0, len(a.implied)+len(args))
	merged = append(merged, a.implied...)
	merged = append(merged, args...)
	return argsToFields(merged)
}

func (a *HCLogAdapter) IsTrace() bool { return a.logger.IsLevelEnabled(TraceLevel) }
func (a *HCLogAdapter) IsDebug() bool { return a.logger.IsLevelEnabled(DebugLevel) }
func (a *HCLogAdapter) IsInfo() bool  { return a.logger.IsLevelEnabled(InfoLevel) }
func (a *HCLogAdapter) IsWarn() bool  { return a.logger.IsLevelEnabled(WarnLevel) }
func (a *HCLogAdapter) IsError() bool { return a.logger.IsLevelEnabled(ErrorLevel) }

func (a *HCLogAdapter) ImpliedArgs() []interface{} { return a.implied }

func (a *HCLogAdapter) With(args ...interface{}) hclog.Logger {
	implied := make([]interface{}, 0, len(a.implied)+len(args))
	implied = append(implied, a.implied...)
	implied = append(implied, args...)
	return &HCLogAdapter{logger: a.logger, name: a.name, implied: implied}
}

func (a *HCLogAdapter) Name() string { return a.name }

func (a *HCLogAdapter) Named(name string) hclog.Logger {
	full := name
	if a.name != "" {
		full = a.name + "." + name
	}
	return NewHCLogAdapter(a.logger, full)
}

func (a *HCLogAdapter) ResetNamed(name string) hclog.Logger {
	return NewHCLogAdapter(a.logger, name)
}

// SetLevel is a no-op: the level is fixed by the wrapped logger's
// configuration.
func (a *HCLogAdapter) SetLevel(_ hclog.Level) {}

func (a *HCLogAdapter) GetLevel() hclog.Level {
	switch {
	case a.logger.IsLevelEnabled(TraceLevel):
		return hclog.Trace
	case a.logger.IsLevelEnabled(DebugLevel):
		return hclog.Debug
	case a.logger.IsLevelEnabled(InfoLevel):
		return hclog.Info
	case a.logger.IsLevelEnabled(WarnLevel):
		return hclog.Warn
	default:
		return hclog.Error
	}
}

func (a *HCLogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(a.StandardWriter(opts), "", 0)
}

func (a *HCLogAdapter) StandardWriter(_ *hclog.StandardLoggerOptions) io.Writer {
	return &stdlogWriter{logger: a.logger}
}

type stdlogWriter struct {
	logger Logger
}

func (w *stdlogWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.logger.Info(msg)
	return len(p), nil
}

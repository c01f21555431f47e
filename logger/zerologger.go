package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// zeroLogger implements Logger on top of zerolog.
type zeroLogger struct {
	zl      zerolog.Logger
	level   LogLevel
	closers []io.Closer
}

// NewLogger builds a Logger from the given configuration.
func NewLogger(cfg Config) (Logger, error) {
	writers := make([]io.Writer, 0, len(cfg.Outputs))
	closers := make([]io.Closer, 0, 1)

	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = []Output{StdoutOutput}
	}
	for _, out := range outputs {
		switch out {
		case StdoutOutput:
			writers = append(writers, os.Stdout)
		case StderrOutput:
			writers = append(writers, os.Stderr)
		case FileOutput:
			lj := &lumberjack.Logger{
				Filename:   cfg.File.Filename,
				MaxSize:    cfg.File.MaxSize,
				MaxAge:     cfg.File.MaxAge,
				MaxBackups: cfg.File.MaxBackups,
				Compress:   cfg.File.Compress,
			}
			writers = append(writers, lj)
			closers = append(closers, lj)
		}
	}

	var w io.Writer
	if len(writers) == 1 {
		w = writers[0]
	} else {
		w = zerolog.MultiLevelWriter(writers...)
	}

	if cfg.Format == ConsoleFormat {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return newZeroLogger(w, cfg, closers), nil
}

// NewLoggerWithWriter builds a Logger that writes to the given writer
// instead of the configured outputs. Used by the gated logger and in
// tests.
func NewLoggerWithWriter(cfg Config, w io.Writer) Logger {
	if cfg.Format == ConsoleFormat {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return newZeroLogger(w, cfg, nil)
}

func newZeroLogger(w io.Writer, cfg Config, closers []io.Closer) *zeroLogger {
	ctx := zerolog.New(w).Level(toZerologLevel(cfg.Level)).With().Timestamp()
	if cfg.Subsystem != "" {
		ctx = ctx.Str("subsystem", cfg.Subsystem)
	}
	if cfg.EnableCaller {
		ctx = ctx.CallerWithSkipFrameCount(3)
	}
	return &zeroLogger{
		zl:      ctx.Logger(),
		level:   cfg.Level,
		closers: closers,
	}
}

func toZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case TraceLevel:
		return zerolog.TraceLevel
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case FatalLevel:
		return zerolog.FatalLevel
	case Disabled:
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func applyFields(ev *zerolog.Event, fields []TypedField) *zerolog.Event {
	for _, f := range fields {
		switch f.Type {
		case StringType:
			ev = ev.Str(f.Key, f.Str)
		case IntType, Int64Type:
			ev = ev.Int64(f.Key, f.Int)
		case Float64Type:
			ev = ev.Float64(f.Key, f.Float)
		case BoolType:
			ev = ev.Bool(f.Key, f.Bool)
		case ErrType:
			if f.Key == "error" {
				ev = ev.Err(f.Err)
			} else {
				ev = ev.AnErr(f.Key, f.Err)
			}
		case TimeType:
			ev = ev.Time(f.Key, f.Time)
		case DurationType:
			ev = ev.Dur(f.Key, f.Duration)
		case AnyType:
			ev = ev.Interface(f.Key, f.Any)
		}
	}
	return ev
}

func (l *zeroLogger) log(ev *zerolog.Event, msg string, fields []TypedField) {
	applyFields(ev, fields).Msg(msg)
}

func (l *zeroLogger) Trace(msg string, fields ...TypedField) {
	l.log(l.zl.Trace(), msg, fields)
}

func (l *zeroLogger) Debug(msg string, fields ...TypedField) {
	l.log(l.zl.Debug(), msg, fields)
}

func (l *zeroLogger) Info(msg string, fields ...TypedField) {
	l.log(l.zl.Info(), msg, fields)
}

func (l *zeroLogger) Warn(msg string, fields ...TypedField) {
	l.log(l.zl.Warn(), msg, fields)
}

func (l *zeroLogger) Error(msg string, fields ...TypedField) {
	l.log(l.zl.Error(), msg, fields)
}

func (l *zeroLogger) Fatal(msg string, fields ...TypedField) {
	l.log(l.zl.Fatal(), msg, fields)
}

func (l *zeroLogger) Tracef(format string, args ...interface{}) {
	l.zl.Trace().Msgf(format, args...)
}

func (l *zeroLogger) Debugf(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *zeroLogger) Infof(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

func (l *zeroLogger) Warnf(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *zeroLogger) Errorf(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

func (l *zeroLogger) Fatalf(format string, args ...interface{}) {
	l.zl.Fatal().Msgf(format, args...)
}

func (l *zeroLogger) WithSubsystem(name string) Logger {
	return &zeroLogger{
		zl:      l.zl.With().Str("subsystem", name).Logger(),
		level:   l.level,
		closers: nil,
	}
}

func (l *zeroLogger) WithFields(fields ...TypedField) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		switch f.Type {
		case StringType:
			ctx = ctx.Str(f.Key, f.Str)
		case IntType, Int64Type:
			ctx = ctx.Int64(f.Key, f.Int)
		case Float64Type:
			ctx = ctx.Float64(f.Key, f.Float)
		case BoolType:
			ctx = ctx.Bool(f.Key, f.Bool)
		case ErrType:
			ctx = ctx.AnErr(f.Key, f.Err)
		case TimeType:
			ctx = ctx.Time(f.Key, f.Time)
		case DurationType:
			ctx = ctx.Dur(f.Key, f.Duration)
		case AnyType:
			ctx = ctx.Interface(f.Key, f.Any)
		}
	}
	return &zeroLogger{zl: ctx.Logger(), level: l.level, closers: nil}
}

func (l *zeroLogger) IsLevelEnabled(level LogLevel) bool {
	return level >= l.level && l.level != Disabled
}

func (l *zeroLogger) Close() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

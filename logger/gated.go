package logger

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultGateBufferSize caps how many bytes a closed gate retains
// before it starts dropping the oldest records.
const DefaultGateBufferSize = 256 * 1024

// GatedWriter buffers writes until its gate is opened, then flushes
// the buffer and passes subsequent writes straight through. It lets a
// process log during startup and decide later, once configuration is
// loaded, where those records should go.
type GatedWriter struct {
	mu      sync.Mutex
	dst     io.Writer
	buf     [][]byte
	bufSize int
	maxSize int
	open    bool
}

// NewGatedWriter returns a closed GatedWriter in front of dst.
func NewGatedWriter(dst io.Writer) *GatedWriter {
	return &GatedWriter{dst: dst, maxSize: DefaultGateBufferSize}
}

// Write buffers p while the gate is closed and forwards it once open.
func (g *GatedWriter) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		return g.dst.Write(p)
	}

	cp := make([]byte, len(p))
	copy(cp, p)
	g.buf = append(g.buf, cp)
	g.bufSize += len(cp)
	for g.bufSize > g.maxSize && len(g.buf) > 0 {
		g.bufSize -= len(g.buf[0])
		g.buf = g.buf[1:]
	}
	return len(p), nil
}

// SetDestination replaces the underlying writer. Buffered records are
// flushed to the new destination when the gate opens.
func (g *GatedWriter) SetDestination(dst io.Writer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dst = dst
}

// OpenGate flushes buffered records to the destination and switches
// the writer to pass-through mode.
func (g *GatedWriter) OpenGate() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		return nil
	}
	g.open = true
	return g.flushLocked()
}

// CloseGate switches the writer back to buffering mode.
func (g *GatedWriter) CloseGate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = false
}

// Flush writes buffered records to the destination without changing
// the gate state.
func (g *GatedWriter) Flush() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.flushLocked()
}

func (g *GatedWriter) flushLocked() error {
	var firstErr error
	for _, p := range g.buf {
		if _, err := g.dst.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.buf = nil
	g.bufSize = 0
	return firstErr
}

// IsOpen reports whether the gate is open.
func (g *GatedWriter) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// BufferedSize returns the number of buffered bytes.
func (g *GatedWriter) BufferedSize() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bufSize
}

// Clear discards buffered records without writing them.
func (g *GatedWriter) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.buf = nil
	g.bufSize = 0
}

// GatedLogger is a Logger whose output is held behind a GatedWriter.
// The server constructs one before reading its configuration, then
// retargets and opens the gate once the final outputs are known.
type GatedLogger struct {
	Logger
	gate    *GatedWriter
	closers []io.Closer
	mu      sync.Mutex
}

// NewGatedLogger builds a Logger writing through a closed gate. The
// gate's initial destination is stderr so records are not lost if the
// process dies before OpenGate.
func NewGatedLogger(cfg Config) *GatedLogger {
	gate := NewGatedWriter(os.Stderr)
	return &GatedLogger{
		Logger: NewLoggerWithWriter(cfg, gate),
		gate:   gate,
	}
}

// OpenGate pins the gate to the destinations described by cfg.Outputs
// and releases buffered records to them.
func (g *GatedLogger) OpenGate(cfg Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	writers := make([]io.Writer, 0, len(cfg.Outputs))
	for _, out := range cfg.Outputs {
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
			g.closers = append(g.closers, lj)
		}
	}
	if len(writers) > 0 {
		g.gate.SetDestination(zerolog.MultiLevelWriter(writers...))
	}
	return g.gate.OpenGate()
}

// Gate exposes the underlying writer, mainly for tests.
func (g *GatedLogger) Gate() *GatedWriter {
	return g.gate
}

// Close flushes the gate and closes any file outputs.
func (g *GatedLogger) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.gate.Flush()
	for _, c := range g.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

package logger

// Output selects a destination for log records.
type Output int

const (
	// StdoutOutput writes records to standard output.
	StdoutOutput Output = iota
	// StderrOutput writes records to standard error.
	StderrOutput
	// FileOutput writes records to a rotating log file.
	FileOutput
)

// FileConfig controls log file rotation. Rotation is handled by
// lumberjack; zero values fall back to its defaults.
type FileConfig struct {
	// Filename is the file to write logs to.
	Filename string

	// MaxSize is the maximum size in megabytes before rotation.
	MaxSize int

	// MaxAge is the maximum number of days to retain old files.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to retain.
	MaxBackups int

	// Compress gzips rotated files when true.
	Compress bool
}

// DefaultFileConfig returns rotation settings suitable for a
// long-running server.
func DefaultFileConfig(filename string) FileConfig {
	return FileConfig{
		Filename:   filename,
		MaxSize:    100,
		MaxAge:     30,
		MaxBackups: 10,
		Compress:   true,
	}
}

// Config holds logger construction parameters.
type Config struct {
	// Level is the minimum severity to emit.
	Level LogLevel

	// Format selects JSON or console rendering.
	Format OutputFormat

	// Outputs lists the destinations to write to. Empty means stdout.
	Outputs []Output

	// File configures rotation when Outputs includes FileOutput.
	File FileConfig

	// Subsystem tags every record with a component name.
	Subsystem string

	// EnableCaller adds the file:line of the call site to each record.
	EnableCaller bool
}

// DefaultConfig returns a production configuration: JSON records at
// info level on stdout.
func DefaultConfig() Config {
	return Config{
		Level:   InfoLevel,
		Format:  JSONFormat,
		Outputs: []Output{StdoutOutput},
	}
}

// DevelopmentConfig returns a configuration for interactive use:
// console records at debug level with caller information.
func DevelopmentConfig() Config {
	return Config{
		Level:        DebugLevel,
		Format:       ConsoleFormat,
		Outputs:      []Output{StderrOutput},
		EnableCaller: true,
	}
}

// Package log provides structured, colored logging for the emberchain node.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for the node's subsystems.
var (
	Chain   zerolog.Logger
	Miner   zerolog.Logger
	Node    zerolog.Logger
	P2P     zerolog.Logger
	Console zerolog.Logger
	Storage zerolog.Logger
)

func init() {
	// Default to colored console output until Init is called with real config.
	Logger = NewConsoleLogger(os.Stdout, "info")
	initComponentLoggers()
}

// Init initializes the logger at the requested level, either as colored
// console output or (jsonOutput) machine-parseable JSON. emberchaind only
// reads one logging knob from the environment, EMBERCHAIN_LOG_LEVEL
// (spec.md §6); JSON output is a CLI-only convenience for piping into log
// aggregators.
func Init(level string, jsonOutput bool) {
	if jsonOutput {
		Logger = NewJSONLogger(os.Stdout, level)
	} else {
		Logger = NewConsoleLogger(os.Stdout, level)
	}
	initComponentLoggers()
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		NoColor:    false,
	}
	return zerolog.New(output).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// parseLevel converts a string level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// initComponentLoggers initializes loggers for each component.
func initComponentLoggers() {
	Chain = Logger.With().Str("component", "chain").Logger()
	Miner = Logger.With().Str("component", "miner").Logger()
	Node = Logger.With().Str("component", "node").Logger()
	P2P = Logger.With().Str("component", "p2p").Logger()
	Console = Logger.With().Str("component", "console").Logger()
	Storage = Logger.With().Str("component", "storage").Logger()
}

// WithComponent returns a logger tagged with an arbitrary component name.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Fatal logs a fatal message and exits the process. Reserved for the
// protocol-fatal and startup-fatal error kinds in spec.md §7 — never for
// recoverable input errors.
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

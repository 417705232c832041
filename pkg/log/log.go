package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithHost creates a child logger with a host field
func WithHost(addr string) zerolog.Logger {
	return Logger.With().Str("host", addr).Logger()
}

// WithDeploymentID creates a child logger with a deployment_id field
func WithDeploymentID(id string) zerolog.Logger {
	return Logger.With().Str("deployment_id", id).Logger()
}

// WithSessionID creates a child logger with a session_id field
func WithSessionID(id string) zerolog.Logger {
	return Logger.With().Str("session_id", id).Logger()
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}

// Package common provides centralized logging infrastructure for monodash.
// This package implements intelligent log output routing that automatically directs
// error messages to stderr while sending other log levels to stdout, enabling
// proper stream separation for scripted and containerized environments.
//
// The logging system is built on logrus for structured logging capabilities with
// custom output handling. It provides a foundation for consistent logging across
// the aggregation core, the source adapters, and the REST surface.
//
// Key Features:
//   - Automatic output stream routing based on log level
//   - Structured logging with JSON and text format support
//   - Global logger instance for consistent usage patterns
//
// Output Routing Strategy:
//
//	Error-level messages are directed to stderr (for immediate attention and
//	error handling) while info, debug, and warning messages go to stdout
//	(for general log processing). Shell pipelines and log aggregators can
//	then treat the two streams independently.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter implements log output routing based on log content analysis.
// This custom writer examines each formatted log line and directs it to the
// appropriate output stream (stdout vs stderr) based on its severity level.
//
// Routing Logic:
//   - Error messages (containing "level=error" or "level":"error") → stderr
//   - All other messages (info, debug, warn) → stdout
//
// The splitter operates on the final formatted output, so it works with both
// the logrus text and JSON formatters.
//
// Example Usage:
//
//	splitter := &OutputSplitter{}
//	logger := logrus.New()
//	logger.SetOutput(splitter)
//
//	logger.Info("This goes to stdout")
//	logger.Error("This goes to stderr")
type OutputSplitter struct{}

// Write implements the io.Writer interface for the OutputSplitter.
// It analyzes incoming log data and routes it to the appropriate output
// stream. Uses bytes.Contains for efficient pattern matching without
// regex processing, and writes directly to the OS streams without
// intermediate buffering.
//
// Parameters:
//   - p: Byte slice containing the formatted log line to be written
//
// Returns:
//   - n: Number of bytes successfully written to the output stream
//   - err: Any error encountered during the write operation
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	// Analyze log content for error level indicators
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		// Route error messages to stderr for immediate attention
		return os.Stderr.Write(p)
	}
	// Route non-error messages to stdout for general processing
	return os.Stdout.Write(p)
}

// Logger provides the global logger instance for monodash.
// This logger is pre-configured with the OutputSplitter for intelligent
// log routing and serves as the central logging facility for all packages.
//
// Configuration Examples:
//
//	// Development environment (human-readable)
//	Logger.SetFormatter(&logrus.TextFormatter{
//	    FullTimestamp: true,
//	})
//	Logger.SetLevel(logrus.DebugLevel)
//
//	// Production environment (machine-readable)
//	Logger.SetFormatter(&logrus.JSONFormatter{})
//	Logger.SetLevel(logrus.InfoLevel)
var Logger = newDefaultLogger()

func newDefaultLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&OutputSplitter{})
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}

package common

import (
	"github.com/sirupsen/logrus"
)

// Log formats accepted by Configure.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Configure applies a level and format name to the global Logger. These are
// the only logging knobs monodash exposes (the log_level and log_format
// settings); everything else keeps the defaults from logging.go.
//
// Unrecognized values fall back to info-level text logging, so a typo in
// the configuration never silences the process.
func Configure(level, format string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	Logger.SetLevel(parsed)

	if format == LogFormatJSON {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// WithSource returns an entry carrying the standard source field used by the
// fetch pipeline and the adapters.
func WithSource(sourceType string) *logrus.Entry {
	return Logger.WithField("source", sourceType)
}

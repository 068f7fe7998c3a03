// Package logging configures the global zerolog logger for every binary.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables read by Init.
const (
	EnvLevel  = "CAPTION_LOG_LEVEL"  // debug, info, warn, error (default: info)
	EnvFormat = "CAPTION_LOG_FORMAT" // console (default) or json
)

// Init initializes the global logger from CAPTION_LOG_LEVEL and
// CAPTION_LOG_FORMAT, writing to stderr.
func Init() {
	Configure(os.Getenv(EnvLevel), os.Getenv(EnvFormat), os.Stderr)
}

// Configure sets the global level and output. The json format writes one
// JSON object per line, which CloudWatch indexes; console is for terminals.
func Configure(level, format string, w io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

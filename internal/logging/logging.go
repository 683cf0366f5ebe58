// Package logging configures the process-global zerolog logger Prism
// Cache's other packages log through directly via
// github.com/rs/zerolog/log, the same way the teacher's cache.go calls
// log.Err(err).Msgf(...) without threading a logger through every
// constructor.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure sets the global zerolog level from level (any of zerolog's
// level names; an unrecognized name falls back to info) and installs a
// console writer on stderr with second-precision RFC 3339 timestamps.
func Configure(level string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

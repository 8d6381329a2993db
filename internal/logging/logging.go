// Package logging builds the zerolog logger shared by pyrock components.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var levels = map[string]zerolog.Level{
	"CRITICAL": zerolog.FatalLevel,
	"ERROR":    zerolog.ErrorLevel,
	"WARNING":  zerolog.WarnLevel,
	"INFO":     zerolog.InfoLevel,
	"DEBUG":    zerolog.DebugLevel,
	"NOTSET":   zerolog.TraceLevel,
}

// Level maps a settings log level to a zerolog level. Unknown names map to
// info.
func Level(name string) zerolog.Level {
	if l, ok := levels[strings.ToUpper(name)]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// New returns a console logger writing to w at the given settings level.
func New(level string, w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: true}
	return zerolog.New(out).Level(Level(level)).With().Timestamp().Str("pkg", "PyRock").Logger()
}

// NewJSON returns a structured logger, used by the index worker whose stderr
// is collected as failure evidence.
func NewJSON(level string, w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(Level(level)).With().Timestamp().Logger()
}

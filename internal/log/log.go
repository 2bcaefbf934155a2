// ABOUTME: zerolog constructors for the CLI
// ABOUTME: Colorized pretty JSON for terminals, packed JSON otherwise
package log

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/tidwall/pretty"

	"github.com/lavago/lavago/internal/version"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

func newBaseLogger(level zerolog.Level) zerolog.Logger {
	return zerolog.
		New(io.Discard).
		With().
		Dict(
			"app",
			zerolog.Dict().Str("version", version.Version),
		).
		Timestamp().
		Logger().
		Level(level)
}

// NewPretty logs indented, colorized JSON to w.
func NewPretty(w io.Writer, level zerolog.Level) zerolog.Logger {
	return newBaseLogger(level).Output(newPrettyWriter(w))
}

// NewPacked logs one JSON object per line to w.
func NewPacked(w io.Writer, level zerolog.Level) zerolog.Logger {
	return newBaseLogger(level).Output(w)
}

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func newPrettyWriter(out io.Writer) prettyWriter {
	return prettyWriter{out}
}

type prettyWriter struct {
	out io.Writer
}

func (p prettyWriter) Write(line []byte) (int, error) {
	if n, err := p.out.Write(pretty.Color(pretty.Pretty(line), nil)); nil != err {
		return n, err
	}
	return len(line), nil
}

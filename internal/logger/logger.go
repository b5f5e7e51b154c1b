// Package logger builds the zerolog logger handed to the rest of baler.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ParseLevel maps a level name to a zerolog level. Unknown names fall back to
// info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Init returns a console logger on stderr at the given level. When file is
// set, plain JSON lines are appended there as well. The returned closer
// releases the file and is never nil.
func Init(level string, file string) (zerolog.Logger, io.Closer, error) {
	return New(os.Stderr, level, file)
}

// New is Init with an explicit console writer.
func New(console io.Writer, level string, file string) (zerolog.Logger, io.Closer, error) {
	var output io.Writer = zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"}
	var closer io.Closer = nopCloser{}

	if file != "" {
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, err
		}
		output = zerolog.MultiLevelWriter(output, f)
		closer = f
	}

	log := zerolog.New(output).Level(ParseLevel(level)).With().Timestamp().Logger()
	return log, closer, nil
}

// Discard is the logger used before Init has run.
func Discard() zerolog.Logger {
	return zerolog.Nop()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Package logger is the structured run log. Entries carry the run id and
// step name so a provisioning run can be followed in journald or a file.
package logger

import (
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options describes logger configuration supplied at creation time.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// HumanReadable selects the console format instead of JSON lines.
	HumanReadable bool
	// NoColor disables ANSI colours in the console format.
	NoColor bool
	Writer  io.Writer
}

// Fields are attached to every entry written by a derived logger.
type Fields map[string]any

// Logger wraps zerolog with the handful of calls the engine and CLI need.
type Logger struct {
	base zerolog.Logger
}

// New creates a Logger. Output goes to stderr unless Writer is set, so it
// never mixes with the report on stdout.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	output := writer
	if opts.HumanReadable {
		output = zerolog.ConsoleWriter{
			Out:        writer,
			NoColor:    opts.NoColor,
			TimeFormat: "15:04:05",
		}
	}

	return &Logger{base: zerolog.New(output).Level(level).With().Timestamp().Logger()}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{base: zerolog.Nop()}
}

// With returns a derived logger that writes fields on every entry. Keys are
// added in sorted order so console output is stable.
func (l *Logger) With(fields Fields) *Logger {
	if l == nil {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ctx := l.base.With()
	for _, key := range keys {
		switch v := fields[key].(type) {
		case string:
			ctx = ctx.Str(key, v)
		case int:
			ctx = ctx.Int(key, v)
		case int64:
			ctx = ctx.Int64(key, v)
		case bool:
			ctx = ctx.Bool(key, v)
		case time.Duration:
			ctx = ctx.Dur(key, v)
		case error:
			ctx = ctx.AnErr(key, v)
		default:
			ctx = ctx.Interface(key, v)
		}
	}
	return &Logger{base: ctx.Logger()}
}

// WithRun scopes entries to one provisioning run.
func (l *Logger) WithRun(runID string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{base: l.base.With().Str("run_id", runID).Logger()}
}

// WithStep scopes entries to one step.
func (l *Logger) WithStep(name string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{base: l.base.With().Str("step", name).Logger()}
}

// Debug writes a debug-level entry.
func (l *Logger) Debug(msg string) {
	if l == nil {
		return
	}
	l.base.Debug().Msg(msg)
}

// Info writes an info-level entry.
func (l *Logger) Info(msg string) {
	if l == nil {
		return
	}
	l.base.Info().Msg(msg)
}

// Warn writes a warning.
func (l *Logger) Warn(msg string) {
	if l == nil {
		return
	}
	l.base.Warn().Msg(msg)
}

// Error writes an error entry; err may be nil.
func (l *Logger) Error(err error, msg string) {
	if l == nil {
		return
	}
	l.base.Error().Err(err).Msg(msg)
}

// Package logging wraps log/slog in a small struct so call sites across
// internal/server and internal/mirror stay terse ("log.Info(...)"
// instead of threading a bare *slog.Logger everywhere), the same shape
// the teacher's daemon process wraps its logger in before handing it to
// the RPC server, event loop and file watcher.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger embeds *slog.Logger so every slog method (Info, Warn, Error,
// Debug, With, ...) is available directly on the wrapper.
type Logger struct {
	*slog.Logger
}

// Options configures New.
type Options struct {
	// Level is the minimum level that reaches Output. Defaults to Info.
	Level slog.Level
	// JSON selects slog's JSON handler (for a daemon's log file) over
	// the text handler (for an interactive CLI invocation).
	JSON bool
	// Output is where log lines are written. Defaults to os.Stderr.
	Output io.Writer
}

// New builds a Logger per opts.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// Default builds a text Logger at Info level writing to stderr, the
// shape every CLI invocation uses unless told otherwise.
func Default() *Logger {
	return New(Options{Level: slog.LevelInfo})
}

// ForComponent returns a child Logger tagging every line with
// component=name, the pattern internal/server uses to distinguish the
// RPC server's, the mirror engine's, and the watcher's log lines
// without threading a prefix string through every call site.
func (l *Logger) ForComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/cruciblehq/cruxrun/internal"
	"golang.org/x/term"
)

// Configures the global logger based on CLI flags.
//
// Flags are folded into the build-time modes so that [internal.LogLevel]
// reflects the final choice. Terminals get the text format; anything else
// gets JSON lines. Verbose output adds source locations.
func configureLogger(w *os.File) {
	if RootCmd.Debug {
		internal.SetDebug(true)
	}
	if RootCmd.Quiet {
		internal.SetQuiet(true)
	}
	if RootCmd.Verbose {
		internal.SetVerbose(true)
	}

	slog.SetDefault(NewLogger(w, isatty(w), internal.LogLevel(), internal.IsVerbose()))
}

// Creates a logger writing to w, grouped under the program name.
func NewLogger(w io.Writer, pretty bool, level slog.Level, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	}

	var handler slog.Handler
	if pretty {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler.WithGroup(internal.Name))
}

// Whether the given file is an interactive terminal.
func isatty(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

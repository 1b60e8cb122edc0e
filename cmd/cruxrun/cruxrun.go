package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/cruciblehq/cruxrun/internal"
	"github.com/cruciblehq/cruxrun/internal/cli"
)

// The entry point for cruxrun.
//
// Initializes logging, displays startup information, and executes the root
// command. A session whose process exited with a non-zero code exits with the
// same code; any other error exits with 1.
func main() {
	slog.SetDefault(cli.NewLogger(os.Stderr, false, internal.LogLevel(), internal.IsVerbose()))

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("cruxrun is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}

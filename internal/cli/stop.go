package cli

import (
	"context"
	"log/slog"

	"github.com/cruciblehq/cruxrun/internal/control"
	"github.com/cruciblehq/cruxrun/internal/paths"
)

// Represents the 'cruxrun stop' command.
type StopCmd struct {
	ID string `arg:"" help:"Session to stop."`
}

// Executes the stop command.
//
// Asks the session to stop and returns once the request was accepted. The
// session tears its container down on its own.
func (c *StopCmd) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := control.Stop(ctx, paths.SessionSocket(c.ID)); err != nil {
		return err
	}

	slog.Info("stop requested", "session", c.ID)
	return nil
}

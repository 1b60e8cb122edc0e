package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cruciblehq/cruxrun/internal/control"
	"github.com/cruciblehq/cruxrun/internal/paths"
)

// How long to wait for each session to answer.
const requestTimeout = 2 * time.Second

// Represents the 'cruxrun status' command.
type StatusCmd struct {
	ID   string `arg:"" optional:"" help:"Session to query. Default lists all sessions."`
	JSON bool   `name:"json" help:"Print results as JSON."`
}

// Executes the status command.
//
// Queries the named session, or every session with a control socket. Sessions
// that do not answer are skipped with a warning.
func (c *StatusCmd) Run(ctx context.Context) error {
	ids := []string{c.ID}
	if c.ID == "" {
		var err error
		if ids, err = paths.Sessions(); err != nil {
			return err
		}
	}

	results := make([]*control.StatusResult, 0, len(ids))
	for _, id := range ids {
		res, err := queryStatus(ctx, id)
		if err != nil {
			if c.ID != "" {
				return err
			}
			slog.Warn("session not responding", "session", id, "error", err)
			continue
		}
		results = append(results, res)
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return printStatus(os.Stdout, results)
}

// Requests the status of one session.
func queryStatus(ctx context.Context, id string) (*control.StatusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return control.Status(ctx, paths.SessionSocket(id))
}

// Writes a table of sessions.
func printStatus(w io.Writer, results []*control.StatusResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tIMAGE\tSTATE\tUPTIME\tPID\tCOMMAND")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.Image, r.State, r.Uptime, r.Pid, strings.Join(r.Args, " "))
	}
	return tw.Flush()
}

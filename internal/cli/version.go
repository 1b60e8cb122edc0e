package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cruciblehq/cruxrun/internal"
)

// Represents the 'cruxrun version' command.
type VersionCmd struct {
	JSON bool `name:"json" help:"Print build metadata as JSON."`
}

// Executes the version command.
func (c *VersionCmd) Run(ctx context.Context) error {
	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(internal.Build())
	}
	fmt.Println(internal.VersionString())
	return nil
}

package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	appName = "cruxrun"

	// Extension of session control sockets.
	socketExt = ".sock"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory for runtime files (session sockets).
//
//	Linux:   $XDG_RUNTIME_DIR/cruxrun or ~/.cache/cruxrun/run
//	macOS:   ~/Library/Caches/cruxrun/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, appName)
	}
	return filepath.Join(xdg.CacheHome, appName, "run")
}

// Path to the control socket of the session with the given ID.
//
//	Linux:   $XDG_RUNTIME_DIR/cruxrun/<id>.sock
func SessionSocket(id string) string {
	return filepath.Join(Runtime(), id+socketExt)
}

// Lists the IDs of sessions that currently have a control socket.
//
// Stale sockets left by a crashed session are included; connecting to them
// fails.
func Sessions() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(Runtime(), "*"+socketExt))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		base := filepath.Base(m)
		ids = append(ids, base[:len(base)-len(socketExt)])
	}
	return ids, nil
}

// Path to the persistent state directory.
//
//	Linux:   $XDG_DATA_HOME/cruxrun or ~/.local/share/cruxrun
//	macOS:   ~/Library/Application Support/cruxrun
func State() string {
	return filepath.Join(xdg.DataHome, appName)
}

// Default root under which session sandboxes are created.
func Sandboxes() string {
	return filepath.Join(State(), "sandboxes")
}

// Path to the optional JSON configuration file.
//
//	Linux:   $XDG_CONFIG_HOME/cruxrun/config.json
//	macOS:   ~/Library/Application Support/cruxrun/config.json
func ConfigFile() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.json")
}

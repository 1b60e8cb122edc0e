package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Name of the layer chain file inside an image's graph directory.
const LayerChainFile = "layerchain.json"

// Reads the layer chain stored in dir.
//
// The file must contain a JSON array of strings. A missing file wraps
// [ErrLayerChainNotFound]; any other decoding problem wraps
// [ErrLayerChainInvalid].
func ReadLayerChain(dir string) ([]string, error) {
	path := filepath.Join(dir, LayerChainFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrLayerChainNotFound, path)
		}
		return nil, err
	}

	var chain []string
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLayerChainInvalid, path, err)
	}

	return chain, nil
}

// Writes chain to dir as the image's layer chain, creating dir if needed.
func WriteLayerChain(dir string, chain []string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.Marshal(chain)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, LayerChainFile), data, 0644)
}

// Returns the immediate parent layer, which is the last entry of the chain.
func ParentLayer(chain []string) (string, error) {
	if len(chain) == 0 {
		return "", ErrParentLayerNotFound
	}
	parent := strings.TrimSpace(chain[len(chain)-1])
	if parent == "" {
		return "", ErrParentLayerNotFound
	}
	return parent, nil
}

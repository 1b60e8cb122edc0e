package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/containerd/containerd/v2/core/snapshots"
	"github.com/containerd/errdefs"
	"github.com/cruciblehq/cruxrun/internal/host"
	"github.com/opencontainers/go-digest"
)

const (

	// Name of the record kept in each sandbox directory.
	sandboxRecordFile = "sandbox.json"

	// Prefix of the snapshot keys of sandboxes.
	sandboxKeyPrefix = "cruxrun-sandbox-"

	// Label that keeps a snapshot from being garbage collected while no
	// container references it yet.
	gcRootLabel = "containerd.io/gc.root"
)

// Identifies the snapshot behind a sandbox directory.
type sandboxRecord struct {
	Key         string `json:"key"`         // Snapshot key of the writable layer.
	Snapshotter string `json:"snapshotter"` // Snapshotter holding the snapshot.
	Parent      string `json:"parent"`      // Chain ID of the read-only parent layer.
}

// Prepares a writable snapshot on top of the last of layers and records it
// in path.
//
// The snapshot key is derived from the owner ID of the first layer. Fails with
// [ErrSandboxExists] if path already holds a sandbox record, readable or not,
// and leaves it untouched. Any other failure removes what this call created.
func (rt *Runtime) CreateSandbox(ctx context.Context, path string, layers []host.Layer) error {
	if len(layers) == 0 {
		return fmt.Errorf("%w: %w", ErrSandbox, ErrNoLayers)
	}

	parent := layers[len(layers)-1].Path
	if _, err := digest.Parse(parent); err != nil {
		return fmt.Errorf("%w: parent layer %q: %w", ErrSandbox, parent, err)
	}

	if _, err := os.Lstat(filepath.Join(path, sandboxRecordFile)); err == nil {
		return fmt.Errorf("%w: %s", ErrSandboxExists, path)
	}

	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("%w: %w", ErrSandbox, err)
	}

	rec := sandboxRecord{
		Key:         sandboxKeyPrefix + layers[0].ID,
		Snapshotter: rt.snapshotter,
		Parent:      parent,
	}

	sn := rt.client.SnapshotService(rec.Snapshotter)
	labels := map[string]string{
		gcRootLabel: time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := sn.Prepare(ctx, rec.Key, rec.Parent, snapshots.WithLabels(labels)); err != nil {
		os.RemoveAll(path)
		return fmt.Errorf("%w: %w", ErrSandbox, err)
	}

	if err := writeSandboxRecord(path, rec); err != nil {
		sn.Remove(ctx, rec.Key)
		os.RemoveAll(path)
		return fmt.Errorf("%w: %w", ErrSandbox, err)
	}

	slog.Debug("sandbox prepared", "path", path, "key", rec.Key, "parent", rec.Parent)
	return nil
}

// Removes the snapshot recorded in path and the directory itself.
//
// Missing sandboxes, records or snapshots are ignored, so destroying twice is
// harmless. Other failures are logged.
func (rt *Runtime) DestroySandbox(ctx context.Context, path string) {
	rec, err := readSandboxRecord(path)
	switch {
	case err == nil:
		sn := rt.client.SnapshotService(rec.Snapshotter)
		if err := sn.Remove(ctx, rec.Key); err != nil && !errdefs.IsNotFound(err) {
			slog.Warn("failed to remove sandbox snapshot", "path", path, "key", rec.Key, "error", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		slog.Warn("failed to read sandbox record", "path", path, "error", err)
	}

	if err := os.RemoveAll(path); err != nil {
		slog.Warn("failed to remove sandbox directory", "path", path, "error", err)
	}
}

// Loads the record stored in a sandbox directory.
func readSandboxRecord(path string) (sandboxRecord, error) {
	data, err := os.ReadFile(filepath.Join(path, sandboxRecordFile))
	if err != nil {
		return sandboxRecord{}, err
	}

	var rec sandboxRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return sandboxRecord{}, err
	}
	if rec.Key == "" || rec.Snapshotter == "" {
		return sandboxRecord{}, fmt.Errorf("incomplete sandbox record %s", strconv.Quote(path))
	}
	return rec, nil
}

// Stores rec in a sandbox directory.
func writeSandboxRecord(path string, rec sandboxRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(path, sandboxRecordFile), data, 0600)
}

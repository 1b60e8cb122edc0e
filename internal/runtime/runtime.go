package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	goruntime "runtime"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/cruciblehq/cruxrun/internal/host"
	"github.com/opencontainers/image-spec/identity"
)

const (

	// Default snapshotter for sandboxes and image layers. fuse-overlayfs
	// provides overlay semantics without mount(2), so cruxrun can run as a
	// regular user.
	DefaultSnapshotter = "fuse-overlayfs"

	// OCI runtime shim for process-isolated containers.
	ociRuntime = "io.containerd.runc.v2"

	// Runtime shim for VM-isolated containers.
	vmRuntime = "io.containerd.kata.v2"

	// Directory under the state root holding per-image graph directories.
	imagesDir = "images"
)

// Holds runtime configuration.
type Config struct {
	Address     string // Containerd socket address.
	Namespace   string // Containerd namespace scoping images, snapshots and containers.
	Snapshotter string // Snapshotter name. Empty uses [DefaultSnapshotter].
	Platform    string // OCI platform. Empty uses the host platform.
	StateDir    string // Root for image graph directories.
	Pull        bool   // Pull images missing from the image store.
}

// Manages the containerd client and implements the host image, storage and
// runtime contracts.
type Runtime struct {
	client      *containerd.Client // Containerd client for managing containers and images.
	snapshotter string             // Snapshotter holding image layers and sandboxes.
	platform    string             // OCI platform images are resolved for.
	stateDir    string             // Root for image graph directories.
	pull        bool               // Whether missing images are pulled.
}

// Creates a runtime connected to the containerd socket in cfg.
//
// The runtime must be closed when no longer needed.
func New(cfg Config) (*Runtime, error) {
	client, err := containerd.New(cfg.Address, containerd.WithDefaultNamespace(cfg.Namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	snapshotter := cfg.Snapshotter
	if snapshotter == "" {
		snapshotter = DefaultSnapshotter
	}

	platform := cfg.Platform
	if platform == "" {
		platform = defaultPlatform()
	}

	return &Runtime{
		client:      client,
		snapshotter: snapshotter,
		platform:    platform,
		stateDir:    cfg.StateDir,
		pull:        cfg.Pull,
	}, nil
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Locates an image and records its layer chain.
//
// The image is pulled first when it is missing and pulling is enabled. Its
// layers are unpacked into the snapshotter, and the chain IDs of its layers
// (the snapshot keys of each layer) are written as layerchain.json into the
// image's graph directory, which is returned.
func (rt *Runtime) InspectImage(ctx context.Context, name string) (host.ImageInfo, error) {
	image, err := rt.resolveImage(ctx, name)
	if err != nil {
		return host.ImageInfo{}, err
	}

	if err := rt.unpack(ctx, image); err != nil {
		return host.ImageInfo{}, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	diffIDs, err := image.RootFS(ctx)
	if err != nil {
		return host.ImageInfo{}, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	chainIDs := identity.ChainIDs(diffIDs)
	chain := make([]string, len(chainIDs))
	for i, id := range chainIDs {
		chain[i] = id.String()
	}

	dir := rt.graphDir(image.Target().Digest.Encoded())
	if err := host.WriteLayerChain(dir, chain); err != nil {
		return host.ImageInfo{}, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("image inspected", "image", name, "layers", len(chain), "dir", dir)
	return host.ImageInfo{Name: name, GraphDir: dir}, nil
}

// Looks up an image and selects the manifest for the runtime's platform.
//
// A missing image is pulled when pulling is enabled and reported as
// [host.ErrImageNotFound] otherwise.
func (rt *Runtime) resolveImage(ctx context.Context, name string) (containerd.Image, error) {
	image, err := rt.loadImage(ctx, name)
	if err == nil || !rt.pull || !errors.Is(err, host.ErrImageNotFound) {
		return image, err
	}

	match, err := rt.platformMatcher()
	if err != nil {
		return nil, err
	}

	slog.Info("pulling image", "image", name, "platform", rt.platform)
	image, err = rt.client.Pull(ctx, name,
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(rt.snapshotter),
		containerd.WithPlatformMatcher(match),
	)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", host.ErrImageNotFound, name)
		}
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return image, nil
}

// Loads an image from the image store for the runtime's platform.
func (rt *Runtime) loadImage(ctx context.Context, name string) (containerd.Image, error) {
	match, err := rt.platformMatcher()
	if err != nil {
		return nil, err
	}

	img, err := rt.client.ImageService().Get(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", host.ErrImageNotFound, name)
		}
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return containerd.NewImageWithPlatform(rt.client, img, match), nil
}

// Returns the matcher for the runtime's platform.
func (rt *Runtime) platformMatcher() (platforms.MatchComparer, error) {
	p, err := platforms.Parse(rt.platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return platforms.Only(p), nil
}

// Unpacks the image layers into the snapshotter unless already present.
func (rt *Runtime) unpack(ctx context.Context, image containerd.Image) error {
	unpacked, err := image.IsUnpacked(ctx, rt.snapshotter)
	if err != nil {
		return err
	}
	if unpacked {
		return nil
	}
	return image.Unpack(ctx, rt.snapshotter)
}

// Returns the graph directory for the image whose target digest is encoded.
func (rt *Runtime) graphDir(encoded string) string {
	return filepath.Join(rt.stateDir, imagesDir, encoded)
}

// Returns the containerd runtime shim for the requested isolation.
func shimFor(hyperV bool) string {
	if hyperV {
		return vmRuntime
	}
	return ociRuntime
}

// Returns the default OCI platform for the host architecture.
func defaultPlatform() string {
	return "linux/" + goruntime.GOARCH
}

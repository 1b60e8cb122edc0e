package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	"github.com/cruciblehq/cruxrun/internal/host"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Network identifier for sharing the host network namespace.
const HostNetwork host.NetworkID = "host"

const (
	cfsPeriod   = 100000 // CFS scheduling period in microseconds.
	minCFSQuota = 1000   // Smallest quota the kernel accepts.
)

// A session container backed by containerd.
//
// The container runs a long-lived placeholder task; session processes are
// started as execs inside it.
type Container struct {
	client      *containerd.Client // Containerd client for managing the container.
	id          string             // Containerd container ID.
	killOnClose bool               // Force-delete the task when shutdown times out.
}

// Creates a containerd container on the sandbox prepared at
// settings.SandboxPath.
//
// A stale container with the same ID, left over from a crashed run, is
// removed first. Its snapshot belongs to the sandbox and is not touched. The
// container is not started.
func (rt *Runtime) CreateContainer(ctx context.Context, id string, settings host.ContainerSettings) (host.Container, error) {
	rec, err := readSandboxRecord(settings.SandboxPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSandbox, err)
	}

	image, err := rt.loadImage(ctx, settings.Image)
	if err != nil {
		return nil, err
	}

	c := &Container{
		client:      rt.client,
		id:          id,
		killOnClose: settings.KillOnClose,
	}
	c.remove(ctx)

	specOpts := []oci.SpecOpts{
		oci.WithDefaultSpecForPlatform(rt.platform),
		oci.WithImageConfig(image),
	}
	specOpts = append(specOpts, networkSpecOpts(settings.NetworkID)...)
	specOpts = append(specOpts, cpuSpecOpts(settings.CPUs)...)
	specOpts = append(specOpts, oci.WithProcessArgs("sleep", "infinity"))

	_, err = rt.client.NewContainer(ctx, id,
		containerd.WithImage(image),
		containerd.WithSnapshotter(rec.Snapshotter),
		containerd.WithSnapshot(rec.Key),
		containerd.WithRuntime(shimFor(settings.HyperV), nil),
		containerd.WithNewSpec(specOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("container created", "id", id, "snapshot", rec.Key, "runtime", shimFor(settings.HyperV))
	return c, nil
}

// Returns the spec options that cap the container at cpus CPUs.
func cpuSpecOpts(cpus float64) []oci.SpecOpts {
	if cpus <= 0 {
		return nil
	}
	quota := int64(cpus * cfsPeriod)
	if quota < minCFSQuota {
		quota = minCFSQuota
	}
	return []oci.SpecOpts{oci.WithCPUCFS(quota, cfsPeriod)}
}

// Returns the spec options that place a container on network.
//
// [HostNetwork] and the empty ID share the host namespace and resolver
// configuration. Anything else is the path of a network namespace to join.
func networkSpecOpts(network host.NetworkID) []oci.SpecOpts {
	if network == "" || network == HostNetwork {
		return []oci.SpecOpts{
			oci.WithHostNamespace(specs.NetworkNamespace),
			oci.WithHostResolvconf,
			oci.WithHostHostsFile,
		}
	}
	return []oci.SpecOpts{
		oci.WithLinuxNamespace(specs.LinuxNamespace{
			Type: specs.NetworkNamespace,
			Path: string(network),
		}),
	}
}

// Starts the container's long-running task with no attached IO.
func (c *Container) Start(ctx context.Context) error {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return nil
}

// Stops the container and removes it from containerd.
//
// The placeholder task ignores SIGTERM, so it is sent SIGKILL and given up to
// timeout to exit. A non-positive timeout waits indefinitely. When the task
// does not exit in time it is force-deleted if the container was created with
// KillOnClose, otherwise [ErrShutdownTimeout] is returned and the container is
// left in place. The sandbox snapshot is never removed here.
//
// Shutting down a container that no longer exists is not an error.
func (c *Container) Shutdown(ctx context.Context, timeout time.Duration) error {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %w", ErrRuntime, err)
		}
		return c.deleteContainer(ctx, ctr)
	}

	statusC, err := task.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := task.Kill(ctx, syscall.SIGKILL); err != nil && !errdefs.IsNotFound(err) {
		slog.Debug("failed to signal container task", "id", c.id, "error", err)
	}

	if !waitExit(statusC, timeout) {
		if !c.killOnClose {
			return fmt.Errorf("%w: %s", ErrShutdownTimeout, c.id)
		}
		slog.Warn("container did not stop in time, forcing removal", "id", c.id, "timeout", timeout)
		if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %w", ErrRuntime, err)
		}
		return c.deleteContainer(ctx, ctr)
	}

	if _, err := task.Delete(ctx); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return c.deleteContainer(ctx, ctr)
}

// Deletes the container metadata, keeping the snapshot.
func (c *Container) deleteContainer(ctx context.Context, ctr containerd.Container) error {
	if err := ctr.Delete(ctx); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return nil
}

// Removes an existing container with this ID, if one exists.
//
// Any running task is killed. The snapshot is kept because it belongs to the
// sandbox. This is a no-op when no container with the ID is found.
func (c *Container) remove(ctx context.Context) {
	existing, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return
	}
	slog.Warn("removing stale container", "id", c.id)
	if task, err := existing.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}
	existing.Delete(ctx)
}

// Waits for an exit status, up to timeout. A non-positive timeout waits
// indefinitely. Reports whether the status arrived.
func waitExit(statusC <-chan containerd.ExitStatus, timeout time.Duration) bool {
	if timeout <= 0 {
		<-statusC
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-statusC:
		return true
	case <-timer.C:
		return false
	}
}

// Package runtime implements the session host contracts on containerd.
//
// A [Runtime] connects to a containerd daemon and serves as image client,
// sandbox storage and container runtime for a session:
//
//   - Images are looked up in containerd's image store (optionally pulled),
//     unpacked into the snapshotter, and their snapshot chain IDs recorded as
//     layerchain.json in a per-image graph directory under the state root.
//   - A sandbox is a writable snapshot prepared on top of the image's top
//     chain ID. Its key is recorded in sandbox.json inside the sandbox
//     directory so it can be destroyed by path alone.
//   - A [Container] is created on the prepared snapshot with a long-running
//     task. Session processes are additional execs whose standard streams are
//     bridged through in-memory pipes.
//
// The [NetworkResolver] picks the network namespace containers join: a named
// or explicit network namespace when configured, otherwise the host network.
//
// Example usage:
//
//	rt, err := runtime.New(runtime.Config{
//	    Address:   "/run/containerd/containerd.sock",
//	    Namespace: "cruxrun",
//	    StateDir:  paths.State(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	info, err := rt.InspectImage(ctx, "docker.io/library/alpine:latest")
//	if err != nil {
//	    return err
//	}
package runtime

// Package host declares the contracts between a session and the container
// host it runs on.
//
// A session needs four collaborators: a [NetworkResolver] that picks the
// network the container joins, an [ImageClient] that locates an image's layer
// chain on disk, a [Storage] manager that creates and destroys the writable
// sandbox layer, and a [Runtime] that creates containers and the processes
// inside them. The runtime package provides containerd-backed implementations;
// tests substitute fakes.
//
// An image's layer chain is stored as layerchain.json in the image's graph
// directory: a JSON array of parent layer paths, most specific last. Use
// [ReadLayerChain] and [ParentLayer] to resolve the layer a sandbox is created
// on top of.
package host

package runtime

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/cruciblehq/cruxrun/internal/host"
)

// Directory where named network namespaces are bound by ip-netns(8).
const netnsDir = "/var/run/netns"

// Picks the network namespace session containers join.
//
// A configured namespace takes precedence: a bare name is looked up under
// /var/run/netns, anything containing a path separator is used as is. It must
// exist. Without one, containers share the host network, which requires at
// least one interface that is up and not a loopback.
type NetworkResolver struct {
	namespace  string                            // Namespace name or path. Empty selects the host network.
	stat       func(string) (os.FileInfo, error) // Checks that a namespace path exists.
	interfaces func() ([]net.Interface, error)   // Lists host interfaces.
}

// Creates a resolver for namespace. An empty namespace selects the host
// network.
func NewNetworkResolver(namespace string) *NetworkResolver {
	return &NetworkResolver{
		namespace:  namespace,
		stat:       os.Stat,
		interfaces: net.Interfaces,
	}
}

// Returns the network containers should join, or an error wrapping
// [host.ErrNetworkNotFound].
func (r *NetworkResolver) FindDefaultNetwork(ctx context.Context) (host.NetworkID, error) {
	if r.namespace != "" {
		return r.namespacePath()
	}

	ifaces, err := r.interfaces()
	if err != nil {
		return "", fmt.Errorf("%w: %w", host.ErrNetworkNotFound, err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return HostNetwork, nil
		}
	}
	return "", fmt.Errorf("%w: no usable host interface", host.ErrNetworkNotFound)
}

// Resolves the configured namespace to an existing path.
func (r *NetworkResolver) namespacePath() (host.NetworkID, error) {
	if r.namespace == string(HostNetwork) {
		return HostNetwork, nil
	}

	path := r.namespace
	if !strings.ContainsRune(path, filepath.Separator) {
		path = filepath.Join(netnsDir, path)
	}

	if _, err := r.stat(path); err != nil {
		return "", fmt.Errorf("%w: %s: %w", host.ErrNetworkNotFound, path, err)
	}
	return host.NetworkID(path), nil
}

package daemon

import (
	"github.com/grovetools/repostore/errors"
	"github.com/grovetools/repostore/pkg/paths"
)

// New returns a RemoteClient when the daemon at endpoint is reachable,
// otherwise local. An empty endpoint means the default socket path.
//
// Callers don't need to know whether the daemon is running or not. When
// local is nil the remote client is returned regardless, and its calls
// fail with DAEMON_NOT_RUNNING.
func New(endpoint string, local *LocalClient) (Client, error) {
	remote, err := NewRemoteClient(resolveEndpoint(endpoint))
	if err != nil {
		return nil, err
	}
	if local == nil || remote.IsRunning() {
		return remote, nil
	}
	remote.Close()
	return local, nil
}

// Connect returns a RemoteClient, or a DAEMON_NOT_RUNNING error if the daemon
// is not reachable. Use this where the daemon is required.
func Connect(endpoint string) (*RemoteClient, error) {
	endpoint = resolveEndpoint(endpoint)
	remote, err := NewRemoteClient(endpoint)
	if err != nil {
		return nil, err
	}
	if !remote.IsRunning() {
		remote.Close()
		return nil, errors.DaemonNotRunning(endpoint)
	}
	return remote, nil
}

func resolveEndpoint(endpoint string) string {
	if endpoint == "" {
		return paths.SocketPath()
	}
	return endpoint
}

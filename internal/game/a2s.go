// Package game provides functionality to query game servers using the Source Engine Query (A2S) protocol.
package game

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/woozymasta/a2s/pkg/a2s"
)

// DefaultTimeout bounds a status query so listings never hang on a
// downed server.
const DefaultTimeout = 3 * time.Second

// Query connects to a game server at "host:port" via UDP and requests
// A2S_INFO. It returns server details (name, map, players) or an error
// if the server is unreachable.
func Query(address string, timeout time.Duration) (*a2s.Info, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("query address %q: %w", address, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("query address %q: invalid port: %w", address, err)
	}

	client, err := a2s.New(host, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	client.Timeout = timeout

	return client.GetInfo()
}

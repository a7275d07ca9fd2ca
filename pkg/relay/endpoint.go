package relay

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var ErrEndpointInvalid = errors.New("endpoint invalid")

// Endpoint is the display server a relay connects to.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) URL() string {
	return "ws://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Resolve derives the display endpoint from a node address, which may be a
// full URI or a bare host:port pair.
func Resolve(nodeURI string, port int) (Endpoint, error) {
	rest := strings.TrimSpace(nodeURI)
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}

	var host string
	if strings.HasPrefix(rest, "[") {
		if end := strings.Index(rest, "]"); end > 0 {
			host = rest[1:end]
		}
	} else if end := strings.IndexAny(rest, ":/"); end >= 0 {
		host = rest[:end]
	} else {
		host = rest
	}

	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: no host in %q", ErrEndpointInvalid, nodeURI)
	}
	if port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: port %d out of range", ErrEndpointInvalid, port)
	}
	return Endpoint{Host: host, Port: port}, nil
}

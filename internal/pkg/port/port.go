package port

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Listen binds addr. When the port is taken and attempts > 1, the following ports
// are tried in order and the first listener that binds is returned. Port 0 binds
// an ephemeral port.
func Listen(addr string, attempts int) (net.Listener, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	start, err := strconv.Atoi(p)
	if err != nil {
		return nil, fmt.Errorf("port: invalid port %q", p)
	}
	if attempts < 1 || start == 0 {
		attempts = 1
	}

	var errs []error
	for port := start; port < start+attempts && port <= 65535; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("port: no free port in [%d, %d): %w", start, start+attempts, errors.Join(errs...))
}

package supervisor

import (
	"context"
	"net"
	"strconv"
	"time"
)

// HealthChecker probes a worker's health endpoint. The supervisor treats a
// failed check as advisory: it is recorded in history but never forces a
// state change, so transient probe failures cannot flap agent state.
type HealthChecker interface {
	// Check reports whether the agent listening on port is healthy.
	Check(ctx context.Context, agentID string, port int, timeout time.Duration) (bool, error)
}

// TCPHealthChecker considers an agent healthy when its port accepts a TCP
// connection within the timeout.
type TCPHealthChecker struct {
	// Host overrides the loopback default, for workers not on this host.
	Host string
}

// Check dials the agent's port.
func (c *TCPHealthChecker) Check(ctx context.Context, agentID string, port int, timeout time.Duration) (bool, error) {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false, nil // unreachable is unhealthy, not an error
	}
	conn.Close()
	return true, nil
}

// Verify TCPHealthChecker implements HealthChecker at compile time.
var _ HealthChecker = (*TCPHealthChecker)(nil)

package transport

import (
	"net"
	"strconv"

	"github.com/hypebeast/go-osc/osc"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// UDP sends bundles to one fixed host:port. The socket is unconnected, so
// an absent receiver (ICMP port unreachable) never surfaces as an error.
type UDP struct {
	conn     *net.UDPConn
	addr     *net.UDPAddr
	endpoint string
	log      *logger.Module
}

// NewUDP resolves the endpoint once and opens the local socket
func NewUDP(host string, port int) (*UDP, error) {
	if host == "" {
		return nil, types.NewConfigurationError("transport.host", "host is required")
	}
	if err := validatePort(port); err != nil {
		return nil, err
	}

	endpoint := endpointString(host, port)
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, &types.ConfigurationError{Field: "transport.host", Reason: "cannot resolve " + host, Err: err}
	}

	network := "udp4"
	if addr.IP.To4() == nil {
		network = "udp6"
	}
	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, &types.ConfigurationError{Field: "transport", Reason: "cannot open local socket", Err: err}
	}

	u := &UDP{
		conn:     conn,
		addr:     addr,
		endpoint: endpoint,
		log:      logger.For("UDP"),
	}
	u.log.Info("Sending to %s (local %s)", addr, conn.LocalAddr())
	return u, nil
}

// Send marshals b and writes one datagram
func (u *UDP) Send(b *osc.Bundle) (int, error) {
	data, err := marshal(b, u.endpoint)
	if err != nil {
		return 0, err
	}

	n, err := u.conn.WriteToUDP(data, u.addr)
	if err != nil {
		return 0, &types.TransportError{Op: "write", Endpoint: u.endpoint, Err: err}
	}
	return n, nil
}

// Peers always reports the single configured endpoint
func (u *UDP) Peers() int { return 1 }

// LocalAddr returns the socket's local address
func (u *UDP) LocalAddr() net.Addr { return u.conn.LocalAddr() }

// Close closes the socket
func (u *UDP) Close() error {
	return u.conn.Close()
}

func (u *UDP) String() string { return u.endpoint }

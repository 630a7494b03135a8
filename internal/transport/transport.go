// Package transport delivers encoded pose bundles over best-effort datagram
// channels. Send returning nil means the payload was handed to the local
// network stack; delivery is never confirmed.
package transport

import (
	"errors"
	"fmt"

	"github.com/hypebeast/go-osc/osc"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/oscwire"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// Kinds accepted by config
const (
	KindUDP    = "udp"
	KindWebRTC = "webrtc"
)

// ErrNoPeer is wrapped in a TransportError when a peer-based transport has
// nobody to send to.
var ErrNoPeer = errors.New("no connected peer")

// Transport sends one bundle per call
type Transport interface {
	// Send serializes b and transmits it as a single datagram. It returns
	// the payload size, or a *types.TransportError for local failures.
	Send(b *osc.Bundle) (int, error)
	// Peers returns the number of receivers the transport currently targets.
	Peers() int
	Close() error
	String() string
}

func marshal(b *osc.Bundle, endpoint string) ([]byte, error) {
	data, err := oscwire.Marshal(b)
	if err != nil {
		return nil, &types.TransportError{Op: "marshal", Endpoint: endpoint, Err: err}
	}
	return data, nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return types.NewConfigurationError("transport.port", "port %d out of range 1-65535", port)
	}
	return nil
}

func endpointString(host string, port int) string {
	return fmt.Sprintf("udp://%s:%d", host, port)
}

package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hypebeast/go-osc/osc"
	"github.com/pion/webrtc/v3"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// DefaultChannelLabel is the data channel label a consumer must open
const DefaultChannelLabel = "pose"

var errClosed = errors.New("transport closed")

// DataChannelConfig configures the WebRTC data channel transport
type DataChannelConfig struct {
	STUNServers []string
	Label       string
}

type peer struct {
	id string
	pc *webrtc.PeerConnection

	mu sync.Mutex
	dc *webrtc.DataChannel
}

func (p *peer) channel() *webrtc.DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dc
}

func (p *peer) setChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()
}

// DataChannel sends each bundle as one message on a WebRTC data channel
// opened by a single remote consumer. The consumer should open the channel
// unordered with zero retransmits so it behaves like a datagram socket. A
// new offer replaces the current peer.
type DataChannel struct {
	api    *webrtc.API
	config webrtc.Configuration
	label  string
	log    *logger.Module

	mu     sync.Mutex
	peer   *peer
	closed bool

	negotiated func(*webrtc.PeerConnection) // runs before a new peer is installed
}

// NewDataChannel creates the transport. No network activity happens until
// the first offer arrives.
func NewDataChannel(cfg DataChannelConfig) *DataChannel {
	iceServers := make([]webrtc.ICEServer, 0, len(cfg.STUNServers))
	for _, url := range cfg.STUNServers {
		if url == "" {
			continue
		}
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}

	label := cfg.Label
	if label == "" {
		label = DefaultChannelLabel
	}

	settingsEngine := webrtc.SettingEngine{}
	settingsEngine.SetDTLSRetransmissionInterval(2 * time.Second)
	settingsEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	return &DataChannel{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(settingsEngine)),
		config: webrtc.Configuration{ICEServers: iceServers},
		label:  label,
		log:    logger.For("DataChannel"),
	}
}

// HandleOffer accepts a JSON session description from the consumer and
// returns the JSON answer with gathered ICE candidates.
func (t *DataChannel) HandleOffer(offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, fmt.Errorf("failed to parse offer: %w", err)
	}
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		return nil, fmt.Errorf("session description is not an offer")
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, errClosed
	}

	pc, err := t.api.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	p := &peer{id: uuid.NewString(), pc: pc}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != t.label {
			t.log.Warn("Peer %s opened unexpected channel %q, ignoring", p.id, dc.Label())
			return
		}
		dc.OnOpen(func() {
			if dc.Ordered() || dc.MaxRetransmits() == nil {
				t.log.Warn("Peer %s channel is reliable/ordered; stale frames may queue", p.id)
			}
			p.setChannel(dc)
			t.log.Info("Peer %s channel %q open", p.id, dc.Label())
		})
		dc.OnClose(func() {
			p.setChannel(nil)
			t.log.Info("Peer %s channel closed", p.id)
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.log.Debug("Peer %s connection state: %s", p.id, state.String())
		if state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			t.removePeer(p)
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}
	<-gatherComplete

	localDesc := pc.LocalDescription()
	if localDesc == nil {
		pc.Close()
		return nil, fmt.Errorf("no local description available")
	}
	answerJSON, err := json.Marshal(localDesc)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to marshal answer: %w", err)
	}

	if t.negotiated != nil {
		t.negotiated(pc)
	}

	// Close may have run while candidates were gathered
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		pc.Close()
		return nil, errClosed
	}
	previous := t.peer
	t.peer = p
	t.mu.Unlock()

	if previous != nil {
		t.log.Info("Peer %s replaced by %s", previous.id, p.id)
		previous.pc.Close()
	}
	t.log.Info("Peer %s negotiated", p.id)
	return answerJSON, nil
}

func (t *DataChannel) removePeer(p *peer) {
	t.mu.Lock()
	current := t.peer == p
	if current {
		t.peer = nil
	}
	t.mu.Unlock()

	if current {
		t.log.Info("Peer %s disconnected", p.id)
		p.pc.Close()
	}
}

// Send writes the bundle to the open data channel
func (t *DataChannel) Send(b *osc.Bundle) (int, error) {
	data, err := marshal(b, t.String())
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	p := t.peer
	t.mu.Unlock()

	var dc *webrtc.DataChannel
	if p != nil {
		dc = p.channel()
	}
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return 0, &types.TransportError{Op: "write", Endpoint: t.String(), Err: ErrNoPeer}
	}

	if err := dc.Send(data); err != nil {
		return 0, &types.TransportError{Op: "write", Endpoint: t.String(), Err: err}
	}
	return len(data), nil
}

// Peers returns 1 while a consumer channel is open
func (t *DataChannel) Peers() int {
	t.mu.Lock()
	p := t.peer
	t.mu.Unlock()
	if p == nil || p.channel() == nil {
		return 0
	}
	return 1
}

// Close disconnects the current peer; further offers are refused
func (t *DataChannel) Close() error {
	t.mu.Lock()
	p := t.peer
	t.peer = nil
	t.closed = true
	t.mu.Unlock()

	if p != nil {
		return p.pc.Close()
	}
	return nil
}

func (t *DataChannel) String() string {
	return "webrtc-datachannel:" + t.label
}

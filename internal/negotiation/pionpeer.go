package negotiation

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// PionPeer adapts *webrtc.PeerConnection to the PeerConnection interface
// the machine drives.
type PionPeer struct {
	pc *webrtc.PeerConnection
}

// NewPionPeer builds a peer connection against the given ICE servers and
// wires locally gathered candidates into onCandidate.
func NewPionPeer(iceServers []webrtc.ICEServer, onCandidate func(webrtc.ICECandidateInit)) (*PionPeer, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		onCandidate(c.ToJSON())
	})

	return &PionPeer{pc: pc}, nil
}

// Underlying exposes the wrapped pion connection for track and data
// channel setup that happens outside the negotiation exchange.
func (p *PionPeer) Underlying() *webrtc.PeerConnection {
	return p.pc
}

func (p *PionPeer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *PionPeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *PionPeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *PionPeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *PionPeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *PionPeer) Close() error {
	return p.pc.Close()
}

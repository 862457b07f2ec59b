package negotiation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vericall/vericall/internal/signaling"

	"github.com/pion/webrtc/v4"
)

// State of the offer/answer exchange for one participant.
type State int

const (
	StateIdle State = iota
	StateAwaitingRemoteDescription
	StateStable
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingRemoteDescription:
		return "awaiting-remote-description"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role decides who drives the exchange. The agent always offers, the
// customer always answers.
type Role int

const (
	Initiator Role = iota
	Responder
)

var ErrClosed = errors.New("negotiation is closed")

// PeerConnection is the peer-connection capability the machine drives. It
// matches the subset of *webrtc.PeerConnection the exchange needs, so it
// can be faked in tests.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	Close() error
}

// SendFunc delivers an outbound signaling message to the relay.
type SendFunc func(signaling.Message) error

// Machine drives one side of the offer/answer exchange.
//
// Remote candidates may arrive before the remote description on real
// networks. They are buffered in arrival order and applied, in that order,
// exactly once the remote description is set; candidates arriving after
// that are applied immediately. Candidate failures never tear the call
// down.
type Machine struct {
	role   Role
	pc     PeerConnection
	send   SendFunc
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func NewMachine(role Role, pc PeerConnection, send SendFunc, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		role:   role,
		pc:     pc,
		send:   send,
		logger: logger,
		state:  StateIdle,
	}
}

// State reports the current negotiation state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins the exchange after the room join. The initiator creates and
// sends the offer immediately; the responder just waits for it.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return fmt.Errorf("start in state %s", m.state)
	}
	m.state = StateAwaitingRemoteDescription

	if m.role != Initiator {
		return nil
	}

	offer, err := m.pc.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := m.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return m.send(signaling.Message{
		Event: signaling.EventOffer,
		SDP:   marshalSDP(offer),
	})
}

// HandleOffer applies a remote offer and sends back the answer. An offer
// arriving at the initiator is a protocol violation from a duplicated or
// replayed message and is ignored.
func (m *Machine) HandleOffer(raw json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return ErrClosed
	}
	if m.role != Responder {
		m.logger.Debug("ignoring offer in initiator role")
		return nil
	}
	if m.remoteSet {
		m.logger.Debug("ignoring duplicate offer")
		return nil
	}

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &offer); err != nil {
		return fmt.Errorf("malformed description: %w", err)
	}
	if err := m.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	m.remoteSet = true
	m.state = StateStable
	m.flushPendingLocked()

	answer, err := m.pc.CreateAnswer()
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := m.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return m.send(signaling.Message{
		Event: signaling.EventAnswer,
		SDP:   marshalSDP(answer),
	})
}

// HandleAnswer applies a remote answer. An answer arriving at the
// responder is ignored the same way a misdirected offer is.
func (m *Machine) HandleAnswer(raw json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return ErrClosed
	}
	if m.role != Initiator {
		m.logger.Debug("ignoring answer in responder role")
		return nil
	}
	if m.remoteSet {
		m.logger.Debug("ignoring duplicate answer")
		return nil
	}

	var answer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &answer); err != nil {
		return fmt.Errorf("malformed description: %w", err)
	}
	if err := m.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	m.remoteSet = true
	m.state = StateStable
	m.flushPendingLocked()
	return nil
}

// HandleCandidate buffers or applies one remote candidate.
func (m *Machine) HandleCandidate(raw json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return
	}

	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &candidate); err != nil {
		m.logger.Warn("dropping malformed candidate", "error", err)
		return
	}

	if !m.remoteSet {
		m.pending = append(m.pending, candidate)
		return
	}
	if err := m.pc.AddICECandidate(candidate); err != nil {
		m.logger.Warn("failed to add candidate", "error", err)
	}
}

// SendLocalCandidate relays a locally gathered candidate right away.
// Outbound candidates need no buffering; only the receiving side waits
// for its remote description.
func (m *Machine) SendLocalCandidate(candidate webrtc.ICECandidateInit) {
	m.mu.Lock()
	closed := m.state == StateClosed
	m.mu.Unlock()
	if closed {
		return
	}

	raw, err := json.Marshal(candidate)
	if err != nil {
		return
	}
	if err := m.send(signaling.Message{Event: signaling.EventICECandidate, Candidate: raw}); err != nil {
		m.logger.Debug("failed to send local candidate", "error", err)
	}
}

// Close releases the peer connection and discards buffered candidates.
// Safe to call more than once; the machine cannot be reused afterwards
// because offer/answer state does not survive a disconnect.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return
	}
	m.state = StateClosed
	m.pending = nil
	if err := m.pc.Close(); err != nil {
		m.logger.Debug("peer connection close", "error", err)
	}
}

func (m *Machine) flushPendingLocked() {
	for _, candidate := range m.pending {
		if err := m.pc.AddICECandidate(candidate); err != nil {
			m.logger.Warn("failed to add buffered candidate", "error", err)
		}
	}
	m.pending = nil
}

func marshalSDP(desc webrtc.SessionDescription) json.RawMessage {
	b, _ := json.Marshal(desc)
	return b
}

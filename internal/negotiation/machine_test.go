package negotiation

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/vericall/vericall/internal/signaling"

	"github.com/pion/webrtc/v4"
)

// fakePeer records every call the machine makes, in order.
type fakePeer struct {
	remoteSet  bool
	candidates []webrtc.ICECandidateInit
	closed     bool

	failAddCandidate bool
}

func (f *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (f *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (f *fakePeer) SetLocalDescription(webrtc.SessionDescription) error { return nil }

func (f *fakePeer) SetRemoteDescription(webrtc.SessionDescription) error {
	f.remoteSet = true
	return nil
}

func (f *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	if f.failAddCandidate {
		return fmt.Errorf("bad candidate")
	}
	if !f.remoteSet {
		return fmt.Errorf("candidate before remote description")
	}
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakePeer) Close() error {
	f.closed = true
	return nil
}

type sentMessages struct {
	msgs []signaling.Message
}

func (s *sentMessages) send(msg signaling.Message) error {
	s.msgs = append(s.msgs, msg)
	return nil
}

func rawDescription(t *testing.T, sdpType webrtc.SDPType) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(webrtc.SessionDescription{Type: sdpType, SDP: "v=0 remote"})
	if err != nil {
		t.Fatalf("marshal description: %v", err)
	}
	return raw
}

func rawCandidate(t *testing.T, candidate string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(webrtc.ICECandidateInit{Candidate: candidate})
	if err != nil {
		t.Fatalf("marshal candidate: %v", err)
	}
	return raw
}

func TestInitiatorSendsOfferOnStart(t *testing.T) {
	peer := &fakePeer{}
	out := &sentMessages{}
	m := NewMachine(Initiator, peer, out.send, nil)

	if err := m.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if len(out.msgs) != 1 || out.msgs[0].Event != signaling.EventOffer {
		t.Fatalf("expected one offer, got %+v", out.msgs)
	}
	if m.State() != StateAwaitingRemoteDescription {
		t.Fatalf("expected awaiting-remote-description, got %s", m.State())
	}
}

func TestResponderWaitsOnStart(t *testing.T) {
	peer := &fakePeer{}
	out := &sentMessages{}
	m := NewMachine(Responder, peer, out.send, nil)

	if err := m.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if len(out.msgs) != 0 {
		t.Fatalf("responder should not send anything on start, got %+v", out.msgs)
	}
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	peer := &fakePeer{}
	out := &sentMessages{}
	m := NewMachine(Responder, peer, out.send, nil)
	m.Start()

	// Candidates race ahead of the offer on real networks.
	m.HandleCandidate(rawCandidate(t, "candidate:1"))
	m.HandleCandidate(rawCandidate(t, "candidate:2"))
	m.HandleCandidate(rawCandidate(t, "candidate:3"))

	if len(peer.candidates) != 0 {
		t.Fatalf("candidates applied before remote description: %+v", peer.candidates)
	}

	if err := m.HandleOffer(rawDescription(t, webrtc.SDPTypeOffer)); err != nil {
		t.Fatalf("offer failed: %v", err)
	}

	if len(peer.candidates) != 3 {
		t.Fatalf("expected 3 flushed candidates, got %d", len(peer.candidates))
	}
	for i, want := range []string{"candidate:1", "candidate:2", "candidate:3"} {
		if peer.candidates[i].Candidate != want {
			t.Fatalf("candidate %d out of order: got %s, want %s", i, peer.candidates[i].Candidate, want)
		}
	}

	// A late candidate goes straight through, not through the buffer again.
	m.HandleCandidate(rawCandidate(t, "candidate:4"))
	if len(peer.candidates) != 4 || peer.candidates[3].Candidate != "candidate:4" {
		t.Fatalf("late candidate not applied directly: %+v", peer.candidates)
	}
}

func TestBufferFlushesExactlyOnce(t *testing.T) {
	peer := &fakePeer{}
	out := &sentMessages{}
	m := NewMachine(Initiator, peer, out.send, nil)
	m.Start()

	m.HandleCandidate(rawCandidate(t, "candidate:1"))

	if err := m.HandleAnswer(rawDescription(t, webrtc.SDPTypeAnswer)); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	// A duplicate answer must not replay the buffer.
	if err := m.HandleAnswer(rawDescription(t, webrtc.SDPTypeAnswer)); err != nil {
		t.Fatalf("duplicate answer errored: %v", err)
	}

	if len(peer.candidates) != 1 {
		t.Fatalf("expected buffer flushed exactly once, got %d candidates", len(peer.candidates))
	}
}

func TestResponderAnswersOffer(t *testing.T) {
	peer := &fakePeer{}
	out := &sentMessages{}
	m := NewMachine(Responder, peer, out.send, nil)
	m.Start()

	if err := m.HandleOffer(rawDescription(t, webrtc.SDPTypeOffer)); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	if len(out.msgs) != 1 || out.msgs[0].Event != signaling.EventAnswer {
		t.Fatalf("expected one answer, got %+v", out.msgs)
	}
	if m.State() != StateStable {
		t.Fatalf("expected stable, got %s", m.State())
	}
}

func TestWrongRoleDescriptionsIgnored(t *testing.T) {
	peer := &fakePeer{}
	out := &sentMessages{}

	initiator := NewMachine(Initiator, peer, out.send, nil)
	initiator.Start()
	out.msgs = nil

	// A replayed offer at the initiator is ignored, not answered.
	if err := initiator.HandleOffer(rawDescription(t, webrtc.SDPTypeOffer)); err != nil {
		t.Fatalf("misdirected offer errored: %v", err)
	}
	if len(out.msgs) != 0 {
		t.Fatalf("initiator must not answer, got %+v", out.msgs)
	}
	if peer.remoteSet {
		t.Fatal("misdirected offer must not set the remote description")
	}

	responder := NewMachine(Responder, &fakePeer{}, out.send, nil)
	responder.Start()
	if err := responder.HandleAnswer(rawDescription(t, webrtc.SDPTypeAnswer)); err != nil {
		t.Fatalf("misdirected answer errored: %v", err)
	}
	if responder.State() != StateAwaitingRemoteDescription {
		t.Fatalf("responder state changed on misdirected answer: %s", responder.State())
	}
}

func TestMalformedCandidateDropped(t *testing.T) {
	peer := &fakePeer{}
	out := &sentMessages{}
	m := NewMachine(Initiator, peer, out.send, nil)
	m.Start()

	m.HandleCandidate(json.RawMessage(`{not json`))
	m.HandleCandidate(rawCandidate(t, "candidate:ok"))

	if err := m.HandleAnswer(rawDescription(t, webrtc.SDPTypeAnswer)); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if len(peer.candidates) != 1 || peer.candidates[0].Candidate != "candidate:ok" {
		t.Fatalf("expected only the valid candidate, got %+v", peer.candidates)
	}
}

func TestFailedCandidateDoesNotTearDown(t *testing.T) {
	peer := &fakePeer{failAddCandidate: true}
	out := &sentMessages{}
	m := NewMachine(Initiator, peer, out.send, nil)
	m.Start()

	if err := m.HandleAnswer(rawDescription(t, webrtc.SDPTypeAnswer)); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	m.HandleCandidate(rawCandidate(t, "candidate:bad"))

	if m.State() != StateStable {
		t.Fatalf("candidate failure must not change state, got %s", m.State())
	}
}

func TestCloseReleasesPeerAndBuffer(t *testing.T) {
	peer := &fakePeer{}
	out := &sentMessages{}
	m := NewMachine(Responder, peer, out.send, nil)
	m.Start()
	m.HandleCandidate(rawCandidate(t, "candidate:1"))

	m.Close()
	m.Close() // safe to repeat

	if !peer.closed {
		t.Fatal("peer connection not released")
	}
	if m.State() != StateClosed {
		t.Fatalf("expected closed, got %s", m.State())
	}

	// Nothing works after close and nothing leaks out.
	if err := m.HandleOffer(rawDescription(t, webrtc.SDPTypeOffer)); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	m.HandleCandidate(rawCandidate(t, "candidate:2"))
	m.SendLocalCandidate(webrtc.ICECandidateInit{Candidate: "candidate:3"})
	if len(out.msgs) != 0 {
		t.Fatalf("closed machine sent messages: %+v", out.msgs)
	}
	if len(peer.candidates) != 0 {
		t.Fatalf("closed machine applied candidates: %+v", peer.candidates)
	}
}

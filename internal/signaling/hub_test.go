package signaling

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

// fakeGate records lifecycle calls and lets tests decide joinability.
type fakeGate struct {
	mu         sync.Mutex
	joinErr    error
	startErr   error
	started    []string
	endedIf    []string
	startAgent string
}

func (g *fakeGate) Joinable(meetingID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.joinErr
}

func (g *fakeGate) Start(meetingID, agentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.startErr != nil {
		return g.startErr
	}
	g.started = append(g.started, meetingID)
	g.startAgent = agentID
	return nil
}

func (g *fakeGate) EndIfOngoing(meetingID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endedIf = append(g.endedIf, meetingID)
}

func drain(t *testing.T, c *Client) []Message {
	t.Helper()
	var msgs []Message
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return msgs
			}
			var msg Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				t.Fatalf("bad payload %q: %v", payload, err)
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestJoinNotifiesBothSides(t *testing.T) {
	hub := NewHub(&fakeGate{}, nil)

	customer := newClient(nil)
	if err := hub.Join(customer, "m1", "cust-1", RoleCustomer); err != nil {
		t.Fatalf("customer join failed: %v", err)
	}
	if msgs := drain(t, customer); len(msgs) != 0 {
		t.Fatalf("first joiner should hear nothing yet, got %+v", msgs)
	}

	agent := newClient(nil)
	if err := hub.Join(agent, "m1", "agent-1", RoleAgent); err != nil {
		t.Fatalf("agent join failed: %v", err)
	}

	custMsgs := drain(t, customer)
	if len(custMsgs) != 1 || custMsgs[0].Event != EventUserJoined || custMsgs[0].ID != "agent-1" {
		t.Fatalf("customer should hear about the agent, got %+v", custMsgs)
	}
	agentMsgs := drain(t, agent)
	if len(agentMsgs) != 1 || agentMsgs[0].Event != EventUserJoined || agentMsgs[0].ID != "cust-1" {
		t.Fatalf("agent should hear who was waiting, got %+v", agentMsgs)
	}
	if hub.RoomSize("m1") != 2 {
		t.Fatalf("expected room size 2, got %d", hub.RoomSize("m1"))
	}
}

func TestJoinRejectsNonJoinableSession(t *testing.T) {
	hub := NewHub(&fakeGate{joinErr: errors.New("ended")}, nil)

	if err := hub.Join(newClient(nil), "m1", "cust-1", RoleCustomer); !errors.Is(err, ErrNotJoinable) {
		t.Fatalf("expected ErrNotJoinable, got %v", err)
	}
	if hub.RoomSize("m1") != 0 {
		t.Fatal("rejected join must not create a room")
	}
}

func TestJoinRejectsUnknownRole(t *testing.T) {
	hub := NewHub(&fakeGate{}, nil)

	if err := hub.Join(newClient(nil), "m1", "x", Role("observer")); !errors.Is(err, ErrRoleRequired) {
		t.Fatalf("expected ErrRoleRequired, got %v", err)
	}
}

func TestSecondParticipantWithSameRoleTurnedAway(t *testing.T) {
	hub := NewHub(&fakeGate{}, nil)

	if err := hub.Join(newClient(nil), "m1", "cust-1", RoleCustomer); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if err := hub.Join(newClient(nil), "m1", "cust-2", RoleCustomer); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
}

func TestSameParticipantReconnectReplacesSocket(t *testing.T) {
	hub := NewHub(&fakeGate{}, nil)

	first := newClient(nil)
	if err := hub.Join(first, "m1", "cust-1", RoleCustomer); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	second := newClient(nil)
	if err := hub.Join(second, "m1", "cust-1", RoleCustomer); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}

	if hub.RoomSize("m1") != 1 {
		t.Fatalf("expected room size 1 after reconnect, got %d", hub.RoomSize("m1"))
	}
	// The stale socket's send channel is closed.
	if _, ok := <-first.send; ok {
		t.Fatal("expected first client's send channel to be closed")
	}
	// The stale socket leaving later must not evict the replacement.
	hub.Leave(first)
	if hub.RoomSize("m1") != 1 {
		t.Fatal("stale leave evicted the reconnected client")
	}
	if !second.trySend([]byte("x")) {
		t.Fatal("replacement client's channel should still be open")
	}
}

func TestRelayReachesOnlyThePeer(t *testing.T) {
	hub := NewHub(&fakeGate{}, nil)

	customer := newClient(nil)
	agent := newClient(nil)
	hub.Join(customer, "m1", "cust-1", RoleCustomer)
	hub.Join(agent, "m1", "agent-1", RoleAgent)
	drain(t, customer)
	drain(t, agent)

	payload := Encode(Message{Event: EventOffer, Room: "m1", ID: "agent-1"})
	if !hub.Relay(agent, payload) {
		t.Fatal("relay with a peer present should deliver")
	}

	custMsgs := drain(t, customer)
	if len(custMsgs) != 1 || custMsgs[0].Event != EventOffer {
		t.Fatalf("customer should receive the offer, got %+v", custMsgs)
	}
	if msgs := drain(t, agent); len(msgs) != 0 {
		t.Fatalf("sender must not receive its own message, got %+v", msgs)
	}
}

func TestRelayAloneIsDroppedSilently(t *testing.T) {
	hub := NewHub(&fakeGate{}, nil)

	customer := newClient(nil)
	hub.Join(customer, "m1", "cust-1", RoleCustomer)

	if hub.Relay(customer, Encode(Message{Event: EventICECandidate})) {
		t.Fatal("relay into an empty room should report no delivery")
	}
	if msgs := drain(t, customer); len(msgs) != 0 {
		t.Fatalf("nothing should echo back to the sender, got %+v", msgs)
	}
}

func TestLeaveNotifiesPeerAndDestroysEmptyRoom(t *testing.T) {
	gate := &fakeGate{}
	hub := NewHub(gate, nil)

	customer := newClient(nil)
	agent := newClient(nil)
	hub.Join(customer, "m1", "cust-1", RoleCustomer)
	hub.Join(agent, "m1", "agent-1", RoleAgent)
	drain(t, customer)
	drain(t, agent)

	hub.Leave(customer)

	agentMsgs := drain(t, agent)
	if len(agentMsgs) != 1 || agentMsgs[0].Event != EventUserLeft || agentMsgs[0].ID != "cust-1" {
		t.Fatalf("agent should hear the customer left, got %+v", agentMsgs)
	}
	if hub.RoomSize("m1") != 1 {
		t.Fatalf("expected room size 1, got %d", hub.RoomSize("m1"))
	}

	hub.Leave(agent)
	if hub.RoomSize("m1") != 0 {
		t.Fatal("empty room should be destroyed")
	}

	gate.mu.Lock()
	ends := len(gate.endedIf)
	gate.mu.Unlock()
	if ends != 2 {
		t.Fatalf("every leave should consult the lifecycle, got %d calls", ends)
	}
}

func TestStartMeetingTellsCustomer(t *testing.T) {
	gate := &fakeGate{}
	hub := NewHub(gate, nil)

	customer := newClient(nil)
	agent := newClient(nil)
	hub.Join(customer, "m1", "cust-1", RoleCustomer)
	hub.Join(agent, "m1", "agent-1", RoleAgent)
	drain(t, customer)
	drain(t, agent)

	if err := hub.StartMeeting("m1", "agent-1"); err != nil {
		t.Fatalf("start meeting failed: %v", err)
	}

	custMsgs := drain(t, customer)
	if len(custMsgs) != 1 || custMsgs[0].Event != EventStartMeeting {
		t.Fatalf("customer should receive start_meeting, got %+v", custMsgs)
	}
	if msgs := drain(t, agent); len(msgs) != 0 {
		t.Fatalf("agent should not receive start_meeting, got %+v", msgs)
	}
	if gate.startAgent != "agent-1" {
		t.Fatalf("lifecycle should record the starting agent, got %q", gate.startAgent)
	}
}

func TestStartMeetingRejectedByLifecycle(t *testing.T) {
	gate := &fakeGate{startErr: errors.New("not notified")}
	hub := NewHub(gate, nil)

	customer := newClient(nil)
	hub.Join(customer, "m1", "cust-1", RoleCustomer)

	if err := hub.StartMeeting("m1", "agent-1"); err == nil {
		t.Fatal("expected lifecycle rejection to propagate")
	}
	if msgs := drain(t, customer); len(msgs) != 0 {
		t.Fatalf("rejected start must not reach the customer, got %+v", msgs)
	}
}

func TestCloseRoomDropsEveryone(t *testing.T) {
	hub := NewHub(&fakeGate{}, nil)

	customer := newClient(nil)
	agent := newClient(nil)
	hub.Join(customer, "m1", "cust-1", RoleCustomer)
	hub.Join(agent, "m1", "agent-1", RoleAgent)

	hub.CloseRoom("m1")

	if hub.RoomSize("m1") != 0 {
		t.Fatal("room should be gone")
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	hub := NewHub(&fakeGate{}, nil)

	custA := newClient(nil)
	custB := newClient(nil)
	hub.Join(custA, "mA", "cust-a", RoleCustomer)
	hub.Join(custB, "mB", "cust-b", RoleCustomer)

	agentA := newClient(nil)
	hub.Join(agentA, "mA", "agent-a", RoleAgent)
	drain(t, custA)
	drain(t, agentA)

	hub.Relay(agentA, Encode(Message{Event: EventOffer}))

	if msgs := drain(t, custB); len(msgs) != 0 {
		t.Fatalf("message leaked across rooms: %+v", msgs)
	}
	if msgs := drain(t, custA); len(msgs) != 1 {
		t.Fatalf("expected delivery within the room, got %+v", msgs)
	}
}

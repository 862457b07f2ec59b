package signaling

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrRoomFull     = errors.New("room already has a participant with this role")
	ErrNotJoinable  = errors.New("session is not joinable")
	ErrNotInRoom    = errors.New("participant is not in a room")
	ErrRoleRequired = errors.New("role must be customer or agent")
)

// SessionGate is how the relay consults the meeting lifecycle. Joins are
// only legal while the session is notified or ongoing; a start request
// must move it notified -> ongoing; a leave during ongoing ends it.
type SessionGate interface {
	Joinable(meetingID string) error
	Start(meetingID, agentID string) error
	EndIfOngoing(meetingID string)
}

// room holds the at-most-two participants of one meeting.
type room struct {
	meetingID string
	customer  *Client
	agent     *Client
}

func (r *room) slot(role Role) **Client {
	if role == RoleAgent {
		return &r.agent
	}
	return &r.customer
}

func (r *room) other(c *Client) *Client {
	if r.customer == c {
		return r.agent
	}
	return r.customer
}

func (r *room) empty() bool {
	return r.customer == nil && r.agent == nil
}

// Hub is the room registry and signaling relay. All membership changes and
// lookups serialize under one mutex so a relay cannot race a join/leave
// into a duplicate forward or a delivery to a removed socket.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room

	gate   SessionGate
	logger *slog.Logger
}

func NewHub(gate SessionGate, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]*room),
		gate:   gate,
		logger: logger,
	}
}

// Join places the client into the room for its meeting. The session must be
// joinable and the role slot free. A second join with the same participant
// ID replaces the previous connection (the reconnect case); a different
// participant with an occupied role is turned away.
func (h *Hub) Join(client *Client, meetingID, participantID string, role Role) error {
	if role != RoleCustomer && role != RoleAgent {
		return ErrRoleRequired
	}
	if err := h.gate.Joinable(meetingID); err != nil {
		return ErrNotJoinable
	}

	h.mu.Lock()
	r, ok := h.rooms[meetingID]
	if !ok {
		r = &room{meetingID: meetingID}
		h.rooms[meetingID] = r
	}

	slot := r.slot(role)
	var replaced *Client
	if old := *slot; old != nil {
		if old.participantID != participantID {
			h.mu.Unlock()
			return ErrRoomFull
		}
		// Same participant reconnecting: the old socket is stale.
		replaced = old
	}

	client.meetingID = meetingID
	client.participantID = participantID
	client.role = role
	*slot = client
	peer := r.other(client)
	h.mu.Unlock()

	if replaced != nil {
		replaced.closeConn()
		replaced.closeSend()
	}

	h.logger.Debug("room join", "meeting_id", meetingID, "participant_id", participantID, "role", role)

	if peer != nil {
		// Both sides learn about each other: the occupant hears who came
		// in, the newcomer hears who was already waiting.
		joined := Encode(Message{Event: EventUserJoined, Room: meetingID, ID: participantID, Role: role})
		if !peer.trySend(joined) {
			peer.closeConn()
		}
		present := Encode(Message{Event: EventUserJoined, Room: meetingID, ID: peer.participantID, Role: peer.role})
		if !client.trySend(present) {
			client.closeConn()
		}
	}
	return nil
}

// Leave removes the client from its room. The remaining occupant gets a
// user-left message; an empty room is destroyed; a leave during an ongoing
// session ends the session.
func (h *Hub) Leave(client *Client) {
	h.mu.Lock()
	r, ok := h.rooms[client.meetingID]
	if !ok {
		h.mu.Unlock()
		return
	}

	slot := r.slot(client.role)
	if *slot != client {
		// Already replaced by a reconnect; nothing to tear down.
		h.mu.Unlock()
		return
	}
	*slot = nil

	peer := r.other(client)
	if r.empty() {
		delete(h.rooms, client.meetingID)
	}
	h.mu.Unlock()

	client.closeSend()

	h.logger.Debug("room leave", "meeting_id", client.meetingID, "participant_id", client.participantID, "role", client.role)

	if peer != nil {
		left := Encode(Message{Event: EventUserLeft, Room: client.meetingID, ID: client.participantID, Role: client.role})
		if !peer.trySend(left) {
			peer.closeConn()
		}
	}

	h.gate.EndIfOngoing(client.meetingID)
}

// Relay forwards a payload to the other occupant of the sender's room.
// With no peer present the payload is dropped silently; the sender is
// never blocked or failed for talking into an empty room.
func (h *Hub) Relay(from *Client, payload []byte) bool {
	h.mu.Lock()
	var peer *Client
	if r, ok := h.rooms[from.meetingID]; ok && *r.slot(from.role) == from {
		peer = r.other(from)
	}
	h.mu.Unlock()

	if peer == nil {
		return false
	}
	if !peer.trySend(payload) {
		peer.closeConn()
		return false
	}
	return true
}

// StartMeeting authorizes the lifecycle transition and tells the customer
// occupant to enter the call. Used by both the HTTP start endpoint and the
// agent's start_meeting signaling event.
func (h *Hub) StartMeeting(meetingID, agentID string) error {
	if err := h.gate.Start(meetingID, agentID); err != nil {
		return err
	}

	h.mu.Lock()
	var customer *Client
	if r, ok := h.rooms[meetingID]; ok {
		customer = r.customer
	}
	h.mu.Unlock()

	if customer != nil {
		msg := Encode(Message{Event: EventStartMeeting, Room: meetingID})
		if !customer.trySend(msg) {
			customer.closeConn()
		}
	}
	return nil
}

// RoomSize reports the current occupancy of a meeting's room.
func (h *Hub) RoomSize(meetingID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[meetingID]
	if !ok {
		return 0
	}
	n := 0
	if r.customer != nil {
		n++
	}
	if r.agent != nil {
		n++
	}
	return n
}

// CloseRoom drops every connection of a meeting's room, for explicit ends.
func (h *Hub) CloseRoom(meetingID string) {
	h.mu.Lock()
	r, ok := h.rooms[meetingID]
	if ok {
		delete(h.rooms, meetingID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	for _, c := range []*Client{r.customer, r.agent} {
		if c != nil {
			c.closeConn()
			c.closeSend()
		}
	}
}

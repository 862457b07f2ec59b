package signaling

import "encoding/json"

// Event is the signaling message kind.
type Event string

const (
	EventJoinRoom     Event = "join-room"
	EventUserJoined   Event = "user-joined"
	EventOffer        Event = "offer"
	EventAnswer       Event = "answer"
	EventICECandidate Event = "ice-candidate"
	EventStartMeeting Event = "start_meeting"
	EventUserLeft     Event = "user-left"
	EventError        Event = "error"
)

// Role tags a room participant. A room holds at most one of each.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
)

// Message is the wire envelope exchanged over the signaling connection.
// SDP and Candidate are kept opaque: the relay forwards them verbatim and
// only the peers interpret them.
type Message struct {
	Event     Event           `json:"event"`
	Room      string          `json:"room,omitempty"`
	ID        string          `json:"id,omitempty"`
	Role      Role            `json:"role,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Encode marshals a message for the wire.
func Encode(msg Message) []byte {
	b, _ := json.Marshal(msg)
	return b
}

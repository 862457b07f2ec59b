package signaling

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 70 * time.Second
	pingPeriod = 30 * time.Second

	// Big enough for any SDP; candidates are tiny.
	maxMessageSize = 64 * 1024
)

// ServeConn owns an upgraded connection until it closes. The first useful
// message must be join-room; everything after that is relayed to the peer.
// Blocks until the participant disconnects.
func (h *Hub) ServeConn(conn *websocket.Conn) {
	client := newClient(conn)

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) readPump(client *Client) {
	joined := false
	defer func() {
		if joined {
			h.Leave(client)
		} else {
			client.closeSend()
		}
		// Let the writer flush queued messages (error replies in
		// particular) before the socket goes away.
		select {
		case <-client.writerDone:
		case <-time.After(writeWait):
		}
		client.closeConn()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			if joined && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read error", "meeting_id", client.meetingID, "participant_id", client.participantID, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Debug("ws bad json", "participant_id", client.participantID, "error", err)
			continue
		}

		switch msg.Event {
		case EventJoinRoom:
			if joined {
				continue
			}
			if msg.Room == "" || msg.ID == "" {
				h.sendError(client, "room and id are required")
				continue
			}
			if err := h.Join(client, msg.Room, msg.ID, msg.Role); err != nil {
				h.sendError(client, joinErrorText(err))
				return
			}
			joined = true

		case EventStartMeeting:
			if !joined || client.role != RoleAgent {
				h.sendError(client, "only a joined agent can start the meeting")
				continue
			}
			if err := h.StartMeeting(client.meetingID, client.participantID); err != nil {
				h.sendError(client, "meeting cannot be started")
			}

		case EventOffer, EventAnswer, EventICECandidate:
			if !joined {
				continue
			}
			// Stamp the sender so the envelope cannot impersonate the peer.
			// Never log SDP/candidate bodies, sizes only.
			msg.Room = client.meetingID
			msg.ID = client.participantID
			msg.Role = client.role
			forward, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.logger.Debug("ws relay", "meeting_id", client.meetingID, "from", client.participantID, "event", msg.Event, "bytes", len(forward))
			if !h.Relay(client, forward) {
				h.logger.Debug("ws relay dropped, no peer", "meeting_id", client.meetingID, "event", msg.Event)
			}

		default:
			h.logger.Debug("ws unknown event", "event", msg.Event, "participant_id", client.participantID)
		}
	}
}

func (h *Hub) writePump(client *Client) {
	defer close(client.writerDone)
	defer client.closeConn()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) sendError(client *Client, text string) {
	if !client.trySend(Encode(Message{Event: EventError, Error: text})) {
		client.closeConn()
	}
}

func joinErrorText(err error) string {
	switch err {
	case ErrRoomFull:
		return "room is full"
	case ErrNotJoinable:
		return "invalid or expired meeting link"
	case ErrRoleRequired:
		return "role must be customer or agent"
	default:
		return "join failed"
	}
}

package signaling

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one participant connection. The send channel decouples the
// relay from the socket: a single writer pump drains it, so messages from
// one sender reach the peer in the order they were relayed.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	// writerDone is closed when the writer pump exits, after draining send.
	writerDone chan struct{}

	meetingID     string
	participantID string
	role          Role

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:       conn,
		send:       make(chan []byte, 32),
		writerDone: make(chan struct{}),
	}
}

// trySend queues a payload without blocking. A full buffer means the
// consumer is too slow to keep a call alive anyway, so the caller closes it.
func (c *Client) trySend(payload []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *Client) closeConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

package callclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vericall/vericall/internal/negotiation"
	"github.com/vericall/vericall/internal/signaling"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// Options configure one headless participant.
type Options struct {
	ServerURL     string // ws:// or wss:// endpoint of the relay
	MeetingID     string
	ParticipantID string
	Role          signaling.Role
	ICEServers    []webrtc.ICEServer
	Logger        *slog.Logger
}

// Client is a headless room participant: it joins the room, drives the
// negotiation machine over a real peer connection, and leaves when the
// peer does. Useful for smoke-testing a deployment without a browser.
type Client struct {
	opts    Options
	conn    *websocket.Conn
	machine *negotiation.Machine
	peer    *negotiation.PionPeer
	logger  *slog.Logger

	done chan struct{}
}

// Dial connects to the relay and joins the meeting room.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.ServerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	c := &Client{
		opts:   opts,
		conn:   conn,
		logger: opts.Logger,
		done:   make(chan struct{}),
	}

	peer, err := negotiation.NewPionPeer(opts.ICEServers, func(candidate webrtc.ICECandidateInit) {
		c.machine.SendLocalCandidate(candidate)
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.peer = peer

	role := negotiation.Responder
	if opts.Role == signaling.RoleAgent {
		role = negotiation.Initiator
	}
	c.machine = negotiation.NewMachine(role, peer, c.send, opts.Logger)

	// The exchange needs at least one media section to negotiate.
	if _, err := peer.Underlying().AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
		conn.Close()
		return nil, fmt.Errorf("add transceiver: %w", err)
	}

	join := signaling.Message{
		Event: signaling.EventJoinRoom,
		Room:  opts.MeetingID,
		ID:    opts.ParticipantID,
		Role:  opts.Role,
	}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send join: %w", err)
	}

	return c, nil
}

// Run processes relay messages until the call ends or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	defer c.Close()

	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-c.done:
		}
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read relay: %w", err)
		}

		var msg signaling.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Debug("bad relay message", "error", err)
			continue
		}

		switch msg.Event {
		case signaling.EventUserJoined:
			c.logger.Info("peer joined", "id", msg.ID, "role", msg.Role)
			if err := c.machine.Start(); err != nil {
				return fmt.Errorf("start negotiation: %w", err)
			}
		case signaling.EventStartMeeting:
			c.logger.Info("meeting started", "meeting_id", msg.Room)
		case signaling.EventOffer:
			if err := c.machine.HandleOffer(msg.SDP); err != nil {
				c.logger.Warn("offer failed", "error", err)
			}
		case signaling.EventAnswer:
			if err := c.machine.HandleAnswer(msg.SDP); err != nil {
				c.logger.Warn("answer failed", "error", err)
			}
		case signaling.EventICECandidate:
			c.machine.HandleCandidate(msg.Candidate)
		case signaling.EventUserLeft:
			c.logger.Info("peer left, call ended", "id", msg.ID)
			return nil
		case signaling.EventError:
			return fmt.Errorf("relay error: %s", msg.Error)
		}
	}
}

func (c *Client) send(msg signaling.Message) error {
	msg.Room = c.opts.MeetingID
	msg.ID = c.opts.ParticipantID
	msg.Role = c.opts.Role
	return c.conn.WriteJSON(msg)
}

// Close tears down the negotiation context and the relay connection.
func (c *Client) Close() {
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.machine.Close()
	_ = c.conn.Close()
}

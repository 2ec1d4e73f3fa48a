/*
Package chat contains the core logic for real-time chat rooms, client
connections, presence tracking, and message broadcasting.

This file defines the Client struct, representing one live WebSocket
connection. It owns the connection's lifecycle, the read and write loops
(ReadPump and WritePump), the join handshake, and teardown.
*/
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"devschat/internal/pkg/auth/ticket"
	"devschat/internal/pkg/errs"
	"devschat/internal/pkg/logx"
	"devschat/internal/pkg/randx"
)

const (
	// timeout for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time the server waits for a Pong from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// MaxContentBytes is the maximum allowed size (in bytes) of message text.
	MaxContentBytes = 5000

	// sendQueueSize bounds the outbound buffer. A member that falls this far
	// behind the room is disconnected rather than stalling the broadcaster.
	sendQueueSize = 256
)

// Client represents one live WebSocket connection and its participant.
// A Client belongs to at most one Room, assigned at join and never reassigned;
// switching rooms requires a new connection.
type Client struct {
	// id uniquely identifies this live socket.
	id string

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// registry admits this client into rooms.
	registry *Registry

	// room the client joined. Nil until the handshake completes. Only touched
	// from the read goroutine.
	room *Room

	// name is the display name, immutable once the handshake completes.
	name string

	// send queues frames waiting to be written to the client.
	send chan []byte

	// closeSendOnce guards the send channel close.
	closeSendOnce sync.Once

	// cleanupOnce guarantees the teardown path runs exactly once.
	cleanupOnce sync.Once

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs a Client around an accepted WebSocket connection.
// The caller starts WritePump in its own goroutine, then runs ReadPump.
func NewClient(registry *Registry, wsConn *websocket.Conn) *Client {
	connectionID := randx.ConnectionID()

	clientLogger := logx.Logger().With().
		Str("connection_id", connectionID).
		Logger()

	return &Client{
		id:       connectionID,
		conn:     wsConn,
		registry: registry,
		send:     make(chan []byte, sendQueueSize),
		logger:   clientLogger,
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string {
	return c.id
}

// Name returns the display name assigned at join, or "" before the handshake.
func (c *Client) Name() string {
	return c.name
}

// ReadPump reads frames from the WebSocket connection until the transport
// closes or a protocol violation ends the session. It handles heartbeats
// (Pong) and drives teardown on exit.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		if !c.processInboundFrame(messageBytes) {
			break
		}
	}
}

// cleanupOnDisconnect runs the teardown path when ReadPump terminates: queue
// the departure with the room (triggering the leave and roster broadcasts)
// and release the transport. Safe to call from any failure path; runs once.
func (c *Client) cleanupOnDisconnect() {
	c.cleanupOnce.Do(func() {
		c.logger.Info().Msg("Client connection cleanup starting.")

		// A queued departure is ordered behind frames the room already
		// accepted from this connection; the room closes the send queue once
		// it processes the leave. On every other path, closing the send queue
		// here lets WritePump flush whatever is still queued (such as a
		// handshake error ack), write the close frame, and release the
		// transport.
		if c.room != nil && c.room.Leave(c) {
			return
		}

		c.closeSend()
	})
}

// processInboundFrame dispatches one raw frame from the client.
// Returns false when the session must end (protocol violation).
func (c *Client) processInboundFrame(messageBytes []byte) bool {
	var inbound Envelope

	if err := json.Unmarshal(messageBytes, &inbound); err != nil {
		c.logger.Warn().Err(err).
			Bytes("message_bytes", messageBytes).
			Msg("Client sent invalid JSON")
		return false
	}

	switch inbound.Type {
	case TypeJoin:
		return c.handleJoin(inbound.Payload, inbound.TempID)

	case TypeSendMessage:
		return c.handleSendMessage(inbound.Payload, inbound.TempID)

	default:
		c.logger.Warn().Str("frame_type", string(inbound.Type)).Msg("Client sent unsupported frame type")
		return true
	}
}

// handleJoin processes the join handshake. On success the client is admitted
// into the room and the room actor emits the ack, the userJoined event, and
// the roster. On failure the client receives an error ack and the session
// ends with no room mutation.
func (c *Client) handleJoin(payloadBytes json.RawMessage, tempID string) bool {
	if c.room != nil {
		c.rejectJoin(tempID, errs.NewError(errs.ErrAlreadyMember))
		return false
	}

	var joinPayload JoinPayload
	if err := json.Unmarshal(payloadBytes, &joinPayload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid join payload")
		c.rejectJoin(tempID, errs.NewError(errs.ErrInvalidJoin))
		return false
	}

	name, customErr := c.resolveName(joinPayload)
	if customErr != nil {
		c.rejectJoin(tempID, customErr)
		return false
	}

	roomName := joinPayload.Room
	if name == "" || roomName == "" {
		c.rejectJoin(tempID, errs.NewError(errs.ErrInvalidJoin))
		return false
	}

	// c.logger is shared with the running WritePump goroutine, so it stays
	// fixed after NewClient; name and room travel as explicit fields instead.
	c.name = name

	room, customErr := c.registry.Join(roomName, registration{client: c, tempID: tempID})
	if customErr != nil {
		c.rejectJoin(tempID, customErr)
		return false
	}

	c.room = room
	return true
}

// resolveName determines the display name for the handshake. A verified
// identity ticket wins over the raw name field whenever ticket verification
// is configured.
func (c *Client) resolveName(joinPayload JoinPayload) (string, *errs.CustomError) {
	secret := c.registry.config.TicketSecret

	if joinPayload.Token != "" && secret != "" {
		claims, err := ticket.Parse(joinPayload.Token, secret)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Join rejected: invalid identity ticket")
			return "", errs.NewError(errs.ErrInvalidTicket)
		}
		return strings.TrimSpace(claims.Name), nil
	}

	return strings.TrimSpace(joinPayload.Name), nil
}

// rejectJoin sends an error ack for a failed handshake.
func (c *Client) rejectJoin(tempID string, customErr *errs.CustomError) {
	c.logger.Warn().
		Int("error_code", customErr.Code).
		Msg("Join handshake rejected.")

	c.enqueueEvent(NewAck(tempID, customErr.Message))
}

// handleSendMessage processes a chat frame after the handshake. Empty text is
// acknowledged and otherwise ignored; oversized text earns an error event;
// anything else is stamped and handed to the room for broadcast.
func (c *Client) handleSendMessage(payloadBytes json.RawMessage, tempID string) bool {
	if c.room == nil {
		c.logger.Warn().Msg("Chat frame received before join handshake.")
		c.enqueueEvent(NewAck(tempID, errs.NewError(errs.ErrJoinBeforeMessage).Message))
		return false
	}

	var sendPayload SendMessagePayload
	if err := json.Unmarshal(payloadBytes, &sendPayload); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid sendMessage payload")
		return true
	}

	if len(sendPayload.Text) > MaxContentBytes {
		c.SendError(errs.NewError(errs.ErrMessageContentTooLong))
		return true
	}

	text := strings.TrimSpace(sendPayload.Text)
	if text == "" {
		c.enqueueEvent(NewAck(tempID, ""))
		return true
	}

	message := NewEvent(TypeMessage, MessagePayload{
		User:      c.name,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})

	// Ack first so the sender's stream shows the ack before any echo.
	c.enqueueEvent(NewAck(tempID, ""))

	if !c.room.Broadcast(c, message) {
		c.logger.Info().Str("room", c.room.Name).Msg("Room closed while sending message.")
		return false
	}

	return true
}

// WritePump writes queued frames from the send channel to the WebSocket and
// keeps the heartbeat alive with periodic Pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedFrame(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingFrame() {
				return
			}
		}
	}
}

// writeQueuedFrame writes one frame pulled from the send channel.
// Returns false when the WritePump loop should terminate.
func (c *Client) writeQueuedFrame(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePingFrame sends a heartbeat Ping.
// Returns false when the WritePump loop should terminate.
func (c *Client) writePingFrame() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// enqueue attempts a non-blocking enqueue of a marshaled frame onto the send
// buffer. Returns false when the buffer is full or already closed; the caller
// decides whether that makes this connection a slow consumer.
func (c *Client) enqueue(messageBytes []byte) (delivered bool) {
	defer func() {
		if recover() != nil {
			// Send channel closed during teardown.
			delivered = false
		}
	}()

	select {
	case c.send <- messageBytes:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send buffer full, dropping frame")
		return false
	}
}

// enqueueEvent marshals an event and enqueues it for delivery.
func (c *Client) enqueueEvent(event Event) error {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error marshaling event for client")
		return err
	}

	if !c.enqueue(messageBytes) {
		return fmt.Errorf("client send queue full")
	}

	return nil
}

// SendError sends a TypeError event to this client only.
func (c *Client) SendError(err error) {
	var code int
	var message string

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		code = customErr.Code
		message = customErr.Message
	} else {
		code = errs.ErrUnknown
		message = "Internal server error"
		c.logger.Error().Err(err).Msg("Unclassified error sent to client")
	}

	errorEvent := NewEvent(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})

	if sendErr := c.enqueueEvent(errorEvent); sendErr != nil {
		c.logger.Error().Err(sendErr).Msg("Failed to queue error event")
	}
}

// closeSend closes the send channel exactly once, letting WritePump flush the
// queue and write the close frame.
func (c *Client) closeSend() {
	c.closeSendOnce.Do(func() {
		close(c.send)
	})
}

// dropTransport forcibly releases the transport, ending ReadPump promptly.
// Used by the room when this connection is a slow consumer.
func (c *Client) dropTransport() {
	if err := c.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug().Err(err).Msg("Error closing slow consumer transport")
	}
}

/*
Package chat contains the core logic for real-time chat rooms, client
connections, presence tracking, and message broadcasting.

This file defines the wire protocol: the envelope shared by inbound and
outbound frames, the event type discriminator, and the payload variants.
Events are transient and exist only on the wire; nothing here is persisted.
*/
package chat

import (
	"encoding/json"
	"time"

	"devschat/internal/pkg/randx"
)

// EventType discriminates the payload variant carried by an envelope.
type EventType string

const (
	// TypeJoin is the client's join handshake, the first frame on a connection.
	TypeJoin EventType = "join"

	// TypeSendMessage is a client chat message frame.
	TypeSendMessage EventType = "sendMessage"

	// TypeMessage is a server-to-client chat message broadcast.
	TypeMessage EventType = "message"

	// TypeRoomData is a server-to-client roster broadcast.
	TypeRoomData EventType = "roomData"

	// TypeUserJoined announces a new member to the rest of the room.
	TypeUserJoined EventType = "userJoined"

	// TypeUserLeft announces a departed member to the rest of the room.
	TypeUserLeft EventType = "userLeft"

	// TypeAck acknowledges a client frame, carrying an error string on failure.
	TypeAck EventType = "ack"

	// TypeError reports a non-fatal protocol or server error to one client.
	TypeError EventType = "error"
)

// Envelope is the frame shape read off the wire. Payload stays raw until the
// type is known.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	TempID  string          `json:"tempID,omitempty"`
}

// Event is a fully materialized outbound frame.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type discriminates the payload variant.
	Type EventType `json:"type"`

	// Payload carries the variant data.
	Payload any `json:"payload,omitempty"`

	// TempID echoes the client-supplied frame ID on acknowledgements.
	TempID string `json:"tempID,omitempty"`

	// Timestamp is the server-observed creation time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// NewEvent builds an outbound event stamped with a fresh ID and the current
// server time.
func NewEvent(eventType EventType, payload any) Event {
	return Event{
		ID:        randx.EventID(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewAck builds an acknowledgement for the frame identified by tempID.
// An empty errMessage means success.
func NewAck(tempID string, errMessage string) Event {
	ack := NewEvent(TypeAck, AckPayload{Error: errMessage})
	ack.TempID = tempID
	return ack
}

// JoinPayload is the client's join handshake data.
type JoinPayload struct {
	// Name is the requested display name. Ignored when Token is present and
	// ticket verification is configured.
	Name string `json:"name"`

	// Room is the target room name, case-sensitive and client-supplied.
	Room string `json:"room"`

	// Token is an optional identity ticket from the external auth layer.
	Token string `json:"token,omitempty"`
}

// SendMessagePayload is the client's chat message data.
type SendMessagePayload struct {
	Text string `json:"text"`
}

// MessagePayload is a chat message as delivered to room members.
type MessagePayload struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// RoomUser is one roster entry.
type RoomUser struct {
	Name string `json:"name"`
}

// RoomDataPayload is the roster of a room, ordered by join time.
type RoomDataPayload struct {
	Room  string     `json:"room"`
	Users []RoomUser `json:"users"`
}

// UserEventPayload carries the subject of a userJoined or userLeft event.
type UserEventPayload struct {
	User RoomUser `json:"user"`
}

// AckPayload reports the outcome of a client frame. Error is empty on success.
type AckPayload struct {
	Error string `json:"error,omitempty"`
}

// ErrorPayload reports an application error to one client.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

/*
Package chat contains the core logic for real-time chat rooms, client
connections, presence tracking, and message broadcasting.

This file defines the Room struct, the per-room actor. A single Run goroutine
owns the ordered member list and serializes every membership mutation and
broadcast, which is what gives each room its total event order. Rooms are
created lazily by the registry and destroy themselves when the last member
leaves.
*/
package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"devschat/internal/pkg/errs"
	"devschat/internal/pkg/logx"
)

const opsChannelBuffer = 1024

// registration asks the room actor to admit a client. tempID identifies the
// join frame so the actor can emit the ack in stream order.
type registration struct {
	client *Client
	tempID string
}

// roomOp is one serialized room operation. Chat broadcasts and departures
// travel through a single FIFO queue so a member's leave is never processed
// ahead of messages the room already accepted from it.
type roomOp struct {
	// leave marks a departure; otherwise the op is a broadcast of event.
	leave  bool
	client *Client
	event  Event
}

// RoomCleanupMsg tells the registry a room's Run loop has finished. It carries
// the room pointer so the registry never deletes a newer room reusing the name.
type RoomCleanupMsg struct {
	Room *Room
}

// Room is a single active chat room. All fields below register/ops are owned
// by the Run goroutine.
type Room struct {
	// Name is the case-sensitive, client-supplied room key.
	Name string

	// createdAt records when the room came into existence.
	createdAt time.Time

	// echoSender controls whether a chat message is delivered back to its
	// sender.
	echoSender bool

	// members holds the current clients in join order.
	members []*Client

	// register queues clients requesting admission.
	register chan registration

	// ops queues departures and broadcasts in acceptance order.
	ops chan roomOp

	// cleanupChan notifies the registry when the Run loop finishes.
	cleanupChan chan<- RoomCleanupMsg

	// registryDone is closed when the registry shuts down, releasing rooms
	// still trying to send their cleanup notification.
	registryDone <-chan struct{}

	// stopChan forces the Run loop to exit (registry shutdown).
	stopChan chan struct{}

	// stopOnce guards stopChan.
	stopOnce sync.Once

	// done is closed when the Run loop has exited. Senders select on it so a
	// dying room never wedges a client goroutine.
	done chan struct{}

	// structured logger with room context.
	logger zerolog.Logger
}

// NewRoom creates a Room. The caller starts Run in its own goroutine.
func NewRoom(name string, echoSender bool, cleanupChan chan<- RoomCleanupMsg, registryDone <-chan struct{}) *Room {
	roomLogger := logx.Logger().With().
		Str("room", name).
		Logger()

	return &Room{
		Name:         name,
		createdAt:    time.Now(),
		echoSender:   echoSender,
		register:     make(chan registration),
		ops:          make(chan roomOp, opsChannelBuffer),
		cleanupChan:  cleanupChan,
		registryDone: registryDone,
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
		logger:       roomLogger,
	}
}

// Register attempts to hand a registration to the Run loop. Returns false when
// the room is already shutting down, in which case the caller retries against
// a fresh room.
func (r *Room) Register(reg registration) bool {
	select {
	case r.register <- reg:
		return true
	case <-r.done:
		return false
	}
}

// Broadcast queues a chat event for fan-out behind the operations already
// accepted. Returns false when the room has already shut down.
func (r *Room) Broadcast(sender *Client, event Event) bool {
	select {
	case r.ops <- roomOp{client: sender, event: event}:
		return true
	case <-r.done:
		return false
	}
}

// Leave queues the client's departure behind any frames already accepted from
// it. Returns false when the room has already shut down; the caller then owns
// releasing the client's send queue.
func (r *Room) Leave(client *Client) bool {
	select {
	case r.ops <- roomOp{leave: true, client: client}:
		return true
	case <-r.done:
		return false
	}
}

// Stop forces the Run loop to exit regardless of membership. Used only during
// registry shutdown.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

// Closed reports whether the Run loop has exited.
func (r *Room) Closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// CreatedAt returns the room's creation timestamp.
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// Run is the room's event loop. It owns the member list and processes
// registrations, departures, and broadcasts one at a time, so every member
// observes the same event order. The loop exits when the room empties or the
// registry stops it.
func (r *Room) Run() {
	defer func() {
		close(r.done)

		r.logger.Info().Msg("Room Run loop finished. Notifying registry for cleanup.")

		select {
		case r.cleanupChan <- RoomCleanupMsg{Room: r}:
		case <-r.registryDone:
		}

		// Release whoever is still here (registry shutdown path).
		for _, member := range r.members {
			member.closeSend()
		}
		r.members = nil
	}()

	for {
		select {
		case reg := <-r.register:
			r.admit(reg)
			if len(r.members) == 0 {
				r.logger.Info().Msg("Room emptied during admission. Shutting down.")
				return
			}

		case op := <-r.ops:
			if op.leave {
				if r.removeMember(op.client, true) && len(r.members) == 0 {
					r.logger.Info().Msg("Room is empty. Shutting down.")
					return
				}
			} else {
				r.fanOut(op)
				if len(r.members) == 0 {
					r.logger.Info().Msg("Room emptied by slow consumer teardown. Shutting down.")
					return
				}
			}

		case <-r.stopChan:
			r.logger.Info().Msg("Room forced stop initiated.")
			return
		}
	}
}

// admit adds the client to the member list and emits, in order: the join ack
// to the new member, userJoined to everyone else, then the roster to everyone.
// The userJoined event always precedes the roster snapshot that includes it.
func (r *Room) admit(reg registration) {
	client := reg.client

	r.members = append(r.members, client)

	r.logger.Info().
		Str("connection_id", client.id).
		Str("display_name", client.name).
		Int("total_members", len(r.members)).
		Msg("Client joined room.")

	if err := client.enqueueEvent(NewAck(reg.tempID, "")); err != nil {
		// The joiner's queue is already unusable and its admission was never
		// announced, so remove it without a userLeft.
		r.logger.Warn().
			Str("connection_id", client.id).
			Str("display_name", client.name).
			Msg("Joiner's send queue unusable. Removing without announcement.")

		r.removeMember(client, false)
		client.dropTransport()
		return
	}

	joined := NewEvent(TypeUserJoined, UserEventPayload{User: RoomUser{Name: client.name}})
	r.deliver(joined, client)

	r.deliver(NewEvent(TypeRoomData, r.rosterPayload()), nil)
}

// removeMember takes the client out of the member list and, when it was
// present, emits userLeft followed by the updated roster to the remaining
// members. announce is false when the member's presence was never announced.
// Returns true when the client was a member.
func (r *Room) removeMember(client *Client, announce bool) bool {
	idx := -1
	for i, member := range r.members {
		if member == client {
			idx = i
			break
		}
	}

	if idx < 0 {
		r.logger.Warn().
			Str("connection_id", client.id).
			Msg("Unregister for unknown or already removed client.")
		return false
	}

	r.members = append(r.members[:idx], r.members[idx+1:]...)
	client.closeSend()

	r.logger.Info().
		Str("connection_id", client.id).
		Str("display_name", client.name).
		Int("total_members", len(r.members)).
		Msg("Client left room.")

	if announce && len(r.members) > 0 {
		left := NewEvent(TypeUserLeft, UserEventPayload{User: RoomUser{Name: client.name}})
		r.deliver(left, nil)
		r.deliver(NewEvent(TypeRoomData, r.rosterPayload()), nil)
	}

	return true
}

// fanOut delivers one chat event to the room, honoring the echo policy.
// A frame whose sender was force-removed would trail that member's leave
// announcement, so it is discarded.
func (r *Room) fanOut(op roomOp) {
	if op.client != nil && !r.isMember(op.client) {
		r.logger.Debug().
			Str("connection_id", op.client.id).
			Str("event_id", op.event.ID).
			Msg("Discarding frame from removed member.")
		return
	}

	exclude := op.client
	if r.echoSender {
		exclude = nil
	}

	r.deliver(op.event, exclude)
}

// isMember reports whether the client is currently in the member list.
func (r *Room) isMember(client *Client) bool {
	for _, member := range r.members {
		if member == client {
			return true
		}
	}
	return false
}

// deliver marshals the event once and enqueues it onto every member's buffer
// except exclude. Members whose buffers overflow are torn down after the pass
// so delivery to healthy members is never blocked or reordered.
func (r *Room) deliver(event Event, exclude *Client) {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().
			Str("event_id", event.ID).
			Err(err).
			Msg("Error marshaling event for broadcast.")
		return
	}

	var stalled []*Client

	for _, member := range r.members {
		if member == exclude {
			continue
		}

		if !member.enqueue(messageBytes) {
			stalled = append(stalled, member)
		}
	}

	for _, member := range stalled {
		r.dropSlowConsumer(member)
	}
}

// dropSlowConsumer tears down a member whose outbound buffer overflowed:
// membership removal, leave and roster broadcasts, and a forced transport
// close so its read loop ends promptly.
func (r *Room) dropSlowConsumer(client *Client) {
	r.logger.Warn().
		Str("connection_id", client.id).
		Str("display_name", client.name).
		Int("error_code", errs.ErrSlowConsumer).
		Msg("Dropping slow consumer.")

	r.removeMember(client, true)
	client.dropTransport()
}

// rosterPayload snapshots the current roster in join order.
func (r *Room) rosterPayload() RoomDataPayload {
	users := make([]RoomUser, 0, len(r.members))
	for _, member := range r.members {
		users = append(users, RoomUser{Name: member.name})
	}

	return RoomDataPayload{
		Room:  r.Name,
		Users: users,
	}
}

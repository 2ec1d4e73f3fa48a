/*
Package chat contains the core logic for real-time chat rooms, client
connections, presence tracking, and message broadcasting.

This file defines the Registry, which maps room names to live Room actors.
Rooms are created lazily on first join and removed once their Run loop exits.
The registry mutex guards only the map; everything happening inside a room is
serialized by that room's own goroutine, so operations on distinct rooms never
contend.
*/
package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"devschat/internal/configs"
	"devschat/internal/pkg/errs"
	"devschat/internal/pkg/logx"
)

// Registry coordinates all active rooms.
type Registry struct {
	// rooms maps room name to its live Room actor.
	rooms map[string]*Room

	// config holds the application's read-only settings.
	config *configs.AppConfig

	// mu protects the rooms map only.
	mu sync.RWMutex

	// cleanup receives notifications from rooms whose Run loop finished.
	// Rooms block on the send so no notification is ever dropped; done
	// releases them during shutdown.
	cleanup chan RoomCleanupMsg

	// done is closed on Shutdown.
	done chan struct{}

	// wg waits for the cleanup goroutine during shutdown.
	wg sync.WaitGroup

	// structured logger with registry context.
	logger zerolog.Logger
}

// NewRegistry constructs a Registry and starts its cleanup loop.
func NewRegistry(cfg *configs.AppConfig) *Registry {
	registryLogger := logx.Logger().With().Str("component", "Registry").Logger()

	r := &Registry{
		rooms:   make(map[string]*Room),
		config:  cfg,
		cleanup: make(chan RoomCleanupMsg, 16),
		done:    make(chan struct{}),
		logger:  registryLogger,
	}

	r.wg.Add(1)

	go r.runCleanupLoop()

	return r
}

// runCleanupLoop removes rooms from the map as their Run loops finish.
func (r *Registry) runCleanupLoop() {
	defer r.wg.Done()

	r.logger.Info().Msg("Cleanup loop started.")

	for {
		select {
		case msg := <-r.cleanup:
			r.deleteRoom(msg.Room)
		case <-r.done:
			r.logger.Info().Msg("Cleanup loop stopped.")
			return
		}
	}
}

// deleteRoom removes the given room from the map, but only while the map
// still holds that exact room. A join racing the teardown may already have
// replaced the entry with a fresh room of the same name.
func (r *Registry) deleteRoom(room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.rooms[room.Name]; ok && current == room {
		delete(r.rooms, room.Name)
		r.logger.Info().Str("room", room.Name).Msg("Room removed from registry.")
	}
}

// Join admits a client into the named room, creating the room if absent.
// A room observed mid-teardown is replaced and the registration retried, so
// a join landing just as the last member leaves still gets a fresh room.
func (r *Registry) Join(roomName string, reg registration) (*Room, *errs.CustomError) {
	// The retry only loops while rooms are actively dying under us.
	const maxAttempts = 8

	for i := 0; i < maxAttempts; i++ {
		room := r.getOrCreate(roomName)

		if room.Register(reg) {
			return room, nil
		}
	}

	r.logger.Error().
		Str("room", roomName).
		Int("attempts", maxAttempts).
		Msg("Failed to register client; room kept closing underneath.")

	return nil, errs.NewError(errs.ErrRoomBusy)
}

// getOrCreate returns the live room for the name, starting a fresh actor when
// the name is unknown or the existing room has already shut down.
func (r *Registry) getOrCreate(roomName string) *Room {
	r.mu.RLock()
	room, ok := r.rooms[roomName]
	r.mu.RUnlock()

	if ok && !room.Closed() {
		return room
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok = r.rooms[roomName]
	if ok && !room.Closed() {
		return room
	}

	room = NewRoom(roomName, r.config.EchoSender, r.cleanup, r.done)
	r.rooms[roomName] = room

	go room.Run()

	r.logger.Info().Str("room", roomName).Msg("New room created and started.")

	return room
}

// GetRoom returns the live room with the given name, or nil.
func (r *Registry) GetRoom(roomName string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomName]
	if !ok || room.Closed() {
		return nil
	}
	return room
}

// Contains reports whether a live room with the given name exists.
func (r *Registry) Contains(roomName string) bool {
	return r.GetRoom(roomName) != nil
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, room := range r.rooms {
		if !room.Closed() {
			count++
		}
	}
	return count
}

// Shutdown stops every room actor, releases rooms still reporting their
// teardown, and waits for the cleanup goroutine to exit.
func (r *Registry) Shutdown() {
	r.logger.Info().Msg("Shutting down registry...")

	r.mu.Lock()

	for _, room := range r.rooms {
		room.Stop()
	}
	r.rooms = make(map[string]*Room)

	r.mu.Unlock()

	close(r.done)
	r.wg.Wait()

	r.logger.Info().Msg("Registry shutdown complete.")
}

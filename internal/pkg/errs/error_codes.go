/*
Package errs provides the application error type and the chat error code space.

The codes identify specific protocol or system failures both in server logs
and in error frames sent to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates the client exceeded the connect rate limit.
	ErrRateLimitExceeded = 1002
)

// 2xxx: Room and Messaging Protocol Errors
const (
	// ErrInvalidJoin indicates a join handshake with a missing or blank
	// display name or room name. The connection is closed without touching
	// any room state.
	ErrInvalidJoin = 2101

	// ErrAlreadyMember indicates a second join attempt on a connection that
	// already completed its handshake. Connections are single-room for life.
	ErrAlreadyMember = 2102

	// ErrJoinBeforeMessage indicates a chat frame arrived before the join
	// handshake completed.
	ErrJoinBeforeMessage = 2103

	// ErrRoomBusy indicates the room actor could not accept a registration.
	ErrRoomBusy = 2104

	// ErrMessageContentTooLong indicates message text over the byte limit.
	ErrMessageContentTooLong = 2201

	// ErrSlowConsumer indicates the connection's outbound buffer overflowed
	// and the connection is being dropped rather than stalling the room.
	ErrSlowConsumer = 2301
)

// 3xxx: Identity and Security Errors
const (
	// ErrInvalidTicket indicates the identity ticket presented at join time
	// failed verification.
	ErrInvalidTicket = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal server error.
	ErrUnknown = 5000
)

/*
Package errs provides the application error type and the chat error code space.

This file maps each error code to its CustomError template, standardizing the
messages and HTTP statuses used across the server.
*/
package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Room and Messaging Protocol Errors
	ErrInvalidJoin:           {Code: ErrInvalidJoin, Message: "A display name and a room are required to join."},
	ErrAlreadyMember:         {Code: ErrAlreadyMember, Message: "This connection already joined a room."},
	ErrJoinBeforeMessage:     {Code: ErrJoinBeforeMessage, Message: "Join a room before sending messages."},
	ErrRoomBusy:              {Code: ErrRoomBusy, Message: "The room is busy. Please try again."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrSlowConsumer:          {Code: ErrSlowConsumer, Message: "Connection too slow to keep up with the room."},

	// 3xxx: Identity and Security Errors
	ErrInvalidTicket: {Code: ErrInvalidTicket, Message: "Identity could not be verified.", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}

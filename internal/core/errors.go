package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeForbidden      = "forbidden"
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeStorageFailed  = "storage_failed"
	ErrCodeRoomNotFound   = "room_not_found"
	ErrCodeBadRequest     = "bad_request"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConnClosed   = errors.New("connection closed")
)

// Error wraps a code and human-readable message. ClientMessageID is set when
// the error rejects a specific message submission, so the client can tell
// "not sent" from "sent but not yet acknowledged".
type Error struct {
	Code            string
	Message         string
	ClientMessageID string
}

func (e *Error) Error() string {
	return e.Message
}

func forbiddenError(msg string) *Error {
	return &Error{Code: ErrCodeForbidden, Message: msg}
}

func validationError(msg, clientMessageID string) *Error {
	return &Error{Code: ErrCodeInvalidMessage, Message: msg, ClientMessageID: clientMessageID}
}

func storageError(msg, clientMessageID string) *Error {
	return &Error{Code: ErrCodeStorageFailed, Message: msg, ClientMessageID: clientMessageID}
}

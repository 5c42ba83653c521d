package types

import "errors"

// Shared error taxonomy. A failure handling one participant's message must
// never prevent handling of subsequent messages or other participants'
// state, so all of these are reported and skipped, never fatal.
var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrDuplicateSession    = errors.New("username already has a live session")
	ErrRecipientOffline    = errors.New("recipient not connected")
	ErrInvalidUsername     = errors.New("username must be 1-50 characters, alphanumeric + underscore/hyphen only")
)

package directory

import "errors"

var (
	ErrNilParticipant = errors.New("participant and channel cannot be nil")
)

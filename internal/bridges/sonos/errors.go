package sonos

import "errors"

// Domain errors for the Sonos bridge package.
var (
	// ErrInvalidMessage is returned when a topology or transport message
	// cannot be decoded.
	ErrInvalidMessage = errors.New("sonos: invalid message")

	// ErrPlayerNotFound is returned when no zone member has the configured name.
	ErrPlayerNotFound = errors.New("sonos: player not found")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("sonos: listener already started")
)

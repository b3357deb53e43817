package hue

import "errors"

// Domain errors for the Hue bridge package.
var (
	// ErrNoBridges is returned when discovery finds no bridge on the network.
	ErrNoBridges = errors.New("hue: no bridges found")

	// ErrDiscoveryFailed is returned when a discovery mechanism itself fails.
	ErrDiscoveryFailed = errors.New("hue: discovery failed")

	// ErrLinkButtonNotPressed is returned by Register when the bridge
	// rejects a new application because its link button was not pressed.
	ErrLinkButtonNotPressed = errors.New("hue: link button not pressed")

	// ErrRegistrationFailed is returned when the bridge refuses registration
	// for any other reason.
	ErrRegistrationFailed = errors.New("hue: registration failed")

	// ErrUnauthorized is returned when the bridge does not recognise the username.
	ErrUnauthorized = errors.New("hue: unauthorized user")

	// ErrRequestFailed is returned when the bridge cannot be reached or
	// answers with an unexpected status.
	ErrRequestFailed = errors.New("hue: request failed")

	// ErrCommandFailed is returned when the bridge reports an error for a
	// light state command.
	ErrCommandFailed = errors.New("hue: light command failed")

	// ErrCredentialNotFound is returned when no username is stored for a bridge.
	ErrCredentialNotFound = errors.New("hue: credential not found")
)

// apiErrorLinkButtonNeeded is the bridge error type for a registration
// attempted without the link button pressed.
const apiErrorLinkButtonNeeded = 101

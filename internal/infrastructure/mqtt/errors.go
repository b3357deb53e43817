package mqtt

import "errors"

// Sentinel errors for broker operations. Callers match them with errors.Is;
// the wrapped cause carries the paho error or the timeout that tripped.
var (
	// ErrNotConnected means the broker link is down. The player listener
	// treats this as "retry on the next OnConnect" rather than fatal.
	ErrNotConnected = errors.New("mqtt: broker link down")

	// ErrConnectionFailed is returned by Connect when the first dial fails.
	ErrConnectionFailed = errors.New("mqtt: cannot reach broker")

	// ErrPublishFailed covers palette, lookup and health publishes that the
	// broker did not acknowledge in time.
	ErrPublishFailed = errors.New("mqtt: publish not acknowledged")

	// ErrPayloadTooLarge rejects a payload before it is handed to paho.
	ErrPayloadTooLarge = errors.New("mqtt: payload exceeds size limit")

	// ErrSubscribeFailed covers both subscribe and unsubscribe round trips.
	ErrSubscribeFailed = errors.New("mqtt: subscription change rejected")

	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)

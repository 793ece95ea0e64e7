package action

import "errors"

// -- Sentinels --

var (
	ErrUnknownAction    = errors.New("unknown action")
	ErrInvalidAction    = errors.New("invalid action")
	ErrUnknownEventType = errors.New("unknown event type")
)

// failedMessage is what a failed action reports. The cause goes to the log.
const failedMessage = "Action failed"

package hub

import "errors"

// ErrHubFull is returned when the broadcast queue is saturated.
var ErrHubFull = errors.New("hub broadcast queue full")

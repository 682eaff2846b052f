package player

import "time"

// State is the playback state of a session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateBuffering
	StatePlaying
	StatePaused
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrorKind classifies a playback failure. Only NetworkTransient is
// eligible for supervised recovery.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorNetworkTransient
	ErrorStreamUnavailable
	ErrorDecodeFailure
	ErrorResourceExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorNetworkTransient:
		return "network_transient"
	case ErrorStreamUnavailable:
		return "stream_unavailable"
	case ErrorDecodeFailure:
		return "decode_failure"
	case ErrorResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}

// EventKind discriminates engine events.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventTrackFinished
)

// Event is an internal engine notification consumed by the supervisor
// and the playlist controller. The external surface stays pull-based.
// Gen identifies the load generation the event belongs to; consumers
// compare it against the engine's current generation so an event that
// was queued behind an explicit load or stop cannot act on the session
// that superseded it.
type Event struct {
	Kind     EventKind
	From, To State
	ErrKind  ErrorKind
	ErrMsg   string
	Track    *Track
	Position time.Duration
	Gen      uint64
}

// Package session owns the lifecycle of one practice conversation: it
// fetches a provider credential, dials the model stream, wires capture
// and playback together, tracks turns and captions, and tears everything
// down exactly once.
package session

// State is the lifecycle phase of a practice session.
type State int

const (
	// StateDisconnected means no conversation is active.
	StateDisconnected State = iota
	// StateConnecting means a credential fetch or dial is in flight.
	StateConnecting
	// StateConnected means the discussion is live.
	StateConnected
	// StateGrading means feedback has been requested and the model is
	// delivering its evaluation.
	StateGrading
	// StateFinished means the model ended the session cleanly.
	StateFinished
	// StateError means the session ended on a failure. Terminal; a new
	// Connect starts over from scratch.
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateGrading:
		return "grading"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether the session holds live resources.
func (s State) Active() bool {
	return s == StateConnecting || s == StateConnected || s == StateGrading
}

package oocsi

// State is the connection lifecycle phase of a Client.
type State int

const (
	// StateDisconnected means no connection is up. Fresh clients start
	// here, and the receive loop returns here after a transport error
	// before retrying.
	StateDisconnected State = iota
	// StateConnecting means the transport dial is in progress.
	StateConnecting
	// StateRegistering means the connection is up and the handshake is
	// awaiting the server's acknowledgement.
	StateRegistering
	// StateConnected means the session is established and messages flow.
	StateConnected
	// StateFailed means an explicit Connect failed or the server refused
	// the registration.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRegistering:
		return "registering"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

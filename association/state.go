package association

// State is the association's position in the handshake/shutdown state
// machine, per spec.md §4.8.
type State int

const (
	StateClosed State = iota
	StateCookieWait
	StateCookieEchoed
	StateEstablished
	StateShutdownPending
	StateShutdownSent
	StateShutdownAckSent
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateCookieWait:
		return "cookie-wait"
	case StateCookieEchoed:
		return "cookie-echoed"
	case StateEstablished:
		return "established"
	case StateShutdownPending:
		return "shutdown-pending"
	case StateShutdownSent:
		return "shutdown-sent"
	case StateShutdownAckSent:
		return "shutdown-ack-sent"
	default:
		return "unknown"
	}
}

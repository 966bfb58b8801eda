package hub

import "fmt"

// State is a connection's position in its lifecycle:
// Connected -> Authenticated -> Closed, or Connected -> Closed.
type State int

const (
	StateConnected State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "connected":
		*s = StateConnected
	case "authenticated":
		*s = StateAuthenticated
	case "closed":
		*s = StateClosed
	default:
		return fmt.Errorf("unknown connection state %q", text)
	}
	return nil
}

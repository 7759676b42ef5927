package session

// State is the lifecycle state of a Session.
type State int

const (
	// StateAnonymous holds no session key.
	StateAnonymous State = iota
	// StateKeyOnly holds a session key but no delegation chain.
	StateKeyOnly
	// StateDelegated holds a session key and a chain that is currently valid.
	StateDelegated
	// StateExpired holds a chain whose validity has lapsed.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateKeyOnly:
		return "key-only"
	case StateDelegated:
		return "delegated"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

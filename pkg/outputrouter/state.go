package outputrouter

// State is one node of the OutputRouter state machine (spec.md §4.5).
type State int

const (
	Uninit State = iota
	Scanning
	Selected
	Idle
	Routing
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Uninit:
		return "Uninit"
	case Scanning:
		return "Scanning"
	case Selected:
		return "Selected"
	case Idle:
		return "Idle"
	case Routing:
		return "Routing"
	case Reconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}

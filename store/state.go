package store

// State is the lifecycle state of the sensor store
type State int32

// Store states. Data operations are only valid in StateReady.
const (
	StateUninitialized State = iota
	StateOpening
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

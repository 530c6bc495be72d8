package store

type State uint8

const (
	Uninitialized State = iota
	Loading
	Ready
	Mutating
	Error
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Mutating:
		return "mutating"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// acceptsMutations reports whether a mutation may start. Mutating stays open
// since background writes are not serialized.
func (s State) acceptsMutations() bool {
	return s == Ready || s == Mutating
}

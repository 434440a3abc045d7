package lifecycle

// State of the transaction lifecycle manager.
type State int

const (
	Idle State = iota
	Submitting
	AwaitingConfirmation
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// InFlight reports whether an operation is unresolved in this state.
func (s State) InFlight() bool {
	return s == Submitting || s == AwaitingConfirmation
}

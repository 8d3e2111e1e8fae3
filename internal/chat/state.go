package chat

// State is where a session's dialogue stands within one cycle.
type State int

const (
	// StateConnected: channel open, nothing in flight.
	StateConnected State = iota
	// StateAwaitingSlots: slots incomplete, a clarifying question is streaming.
	StateAwaitingSlots
	// StateResolving: slots complete, plan lookup in flight.
	StateResolving
	// StateSummarizing: summary generation in flight.
	StateSummarizing
	// StateAnalyzing: a smishing analysis is streaming.
	StateAnalyzing
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAwaitingSlots:
		return "awaiting_slots"
	case StateResolving:
		return "resolving"
	case StateSummarizing:
		return "summarizing"
	case StateAnalyzing:
		return "analyzing"
	default:
		return "unknown"
	}
}

// CanTransition reports whether a cycle may move from s to next. Every
// in-flight state returns to Connected; only Connected starts work.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateConnected:
		return next != StateConnected
	case StateAwaitingSlots, StateResolving, StateSummarizing, StateAnalyzing:
		return next == StateConnected
	default:
		return false
	}
}

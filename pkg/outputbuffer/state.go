package outputbuffer

// State is one of the five lifecycle states a buffer can be in (spec §4.1).
type State int

const (
	// StateOpen allows admissions and new consumer registrations.
	StateOpen State = iota
	// StateNoMoreBuffers allows admissions; the consumer set is frozen.
	StateNoMoreBuffers
	// StateNoMorePages blocks admissions; registrations are still allowed.
	StateNoMorePages
	// StateFlushing blocks admissions and registrations; waiting for
	// consumers to drain.
	StateFlushing
	// StateFinished is terminal.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateNoMoreBuffers:
		return "NO_MORE_BUFFERS"
	case StateNoMorePages:
		return "NO_MORE_PAGES"
	case StateFlushing:
		return "FLUSHING"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

type listener func(State)

// transition is a recorded state change awaiting dispatch once the
// buffer's lock is released. listeners is a snapshot taken at transition
// time so that listeners added afterward don't retroactively receive it.
type transition struct {
	state     State
	listeners []listener
}

// stateMachine is the pure bookkeeping half of spec §4.1: it holds the
// current state and the registered listeners, and decides whether a
// requested transition is legal. It carries no lock of its own — every
// method here is only ever called while the owning Buffer holds its
// single mutex, per spec §5's single-lock-discipline mandate.
type stateMachine struct {
	current   State
	listeners []listener
	pending   []transition
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateOpen}
}

func (sm *stateMachine) state() State {
	return sm.current
}

// canAddPages reports whether enqueue admissions are currently allowed.
func (sm *stateMachine) canAddPages() bool {
	return sm.current == StateOpen || sm.current == StateNoMoreBuffers
}

// canAddBuffers reports whether new consumer registrations are currently
// allowed.
func (sm *stateMachine) canAddBuffers() bool {
	return sm.current == StateOpen || sm.current == StateNoMorePages
}

// addListener registers l for future transitions. Matches spec §4.1:
// "registered listeners are invoked asynchronously on every transition."
func (sm *stateMachine) addListener(l listener) {
	sm.listeners = append(sm.listeners, l)
}

// setState moves to target if it differs from the current state,
// recording a transition for later dispatch. A no-op call (target ==
// current) never enqueues a duplicate transition, though per spec §4.1
// that duplicate dispatch is tolerated, not required.
func (sm *stateMachine) setState(target State) {
	if sm.current == target {
		return
	}
	sm.current = target
	sm.pending = append(sm.pending, transition{
		state:     target,
		listeners: append([]listener(nil), sm.listeners...),
	})
}

// onSetNoMoreBuffers applies the `set_output_buffers(no_more_buffers=true)`
// trigger from the transition table in spec §4.1.
func (sm *stateMachine) onSetNoMoreBuffers() {
	switch sm.current {
	case StateOpen:
		sm.setState(StateNoMoreBuffers)
	case StateNoMorePages:
		sm.setState(StateFlushing)
	}
}

// onSetNoMorePages applies the `set_no_more_pages` trigger from the
// transition table in spec §4.1.
func (sm *stateMachine) onSetNoMorePages() {
	switch sm.current {
	case StateOpen:
		sm.setState(StateNoMorePages)
	case StateNoMoreBuffers:
		sm.setState(StateFlushing)
	}
}

// finish forces the terminal state, used by destroy() and by the
// FLUSHING -> FINISHED "all consumers finished" transition.
func (sm *stateMachine) finish() {
	sm.setState(StateFinished)
}

// drain returns and clears the transitions recorded since the last
// drain. Must be called while still holding the buffer's lock; the
// caller dispatches the result only after releasing it.
func (sm *stateMachine) drain() []transition {
	if len(sm.pending) == 0 {
		return nil
	}
	out := sm.pending
	sm.pending = nil
	return out
}

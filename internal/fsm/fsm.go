// Package fsm is the recognition session state machine.
package fsm

import (
	"errors"
	"fmt"
)

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateListening State = "listening"
	StateEnded     State = "ended"
)

const (
	EventStart  Event = "start"
	EventAccept Event = "accept"
	EventFail   Event = "fail"
	EventStop   Event = "stop"
	EventFinish Event = "finish"
	EventReset  Event = "reset"
)

// ErrInvalidTransition is wrapped by every rejected event.
var ErrInvalidTransition = errors.New("invalid transition")

// Ended is transient: callers reset it to idle as soon as the session's
// resources are released.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStart: StateStarting,
	},
	StateStarting: {
		EventAccept: StateListening,
		EventFail:   StateEnded,
		EventStop:   StateEnded,
		EventFinish: StateEnded,
	},
	StateListening: {
		EventFail:   StateEnded,
		EventStop:   StateEnded,
		EventFinish: StateEnded,
	},
	StateEnded: {
		EventReset: StateIdle,
	},
}

// Transition returns the state after event. A rejected event leaves current
// unchanged.
func Transition(current State, event Event) (State, error) {
	edges, ok := transitions[current]
	if !ok {
		return current, fmt.Errorf("unknown state %q", current)
	}
	next, ok := edges[event]
	if !ok {
		return current, fmt.Errorf("%w: %s --(%s)--> ?", ErrInvalidTransition, current, event)
	}
	return next, nil
}

// Active reports whether a recognizer is owned in state s.
func Active(s State) bool {
	return s == StateStarting || s == StateListening
}

// internal/composer/state.go
package composer

import (
	"fmt"
)

// State is where a messaging panel is in its lifecycle.
type State int

const (
	Idle State = iota
	Opening
	AwaitingEditor
	Writing
	AwaitingDispatchReadiness
	Dispatched
	Discarded
	Closing
	Closed
)

var stateNames = [...]string{
	Idle:                      "Idle",
	Opening:                   "Opening",
	AwaitingEditor:            "AwaitingEditor",
	Writing:                   "Writing",
	AwaitingDispatchReadiness: "AwaitingDispatchReadiness",
	Dispatched:                "Dispatched",
	Discarded:                 "Discarded",
	Closing:                   "Closing",
	Closed:                    "Closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool { return s == Closed }

// Event drives a transition.
type Event int

const (
	// EventOpen starts looking for the control that opens the panel.
	EventOpen Event = iota
	// EventClicked means the opening control was triggered.
	EventClicked
	// EventEditorReady means a fresh editor appeared and the thread is empty.
	EventEditorReady
	// EventHistoryFound means the thread already holds messages.
	EventHistoryFound
	// EventVerified means the editor reads back the message.
	EventVerified
	// EventSend triggers the send control.
	EventSend
	// EventDiscard leaves the draft unsent.
	EventDiscard
	// EventClose starts dismissing the panel. It is also the defensive close after a failure.
	EventClose
	// EventClosed ends the dismissal loop, successful or not.
	EventClosed
	// EventAbort ends the lifecycle from anywhere.
	EventAbort
)

var eventNames = [...]string{
	EventOpen:         "Open",
	EventClicked:      "Clicked",
	EventEditorReady:  "EditorReady",
	EventHistoryFound: "HistoryFound",
	EventVerified:     "Verified",
	EventSend:         "Send",
	EventDiscard:      "Discard",
	EventClose:        "Close",
	EventClosed:       "Closed",
	EventAbort:        "Abort",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return eventNames[e]
}

var transitions = map[State]map[Event]State{
	Idle:                      {EventOpen: Opening},
	Opening:                   {EventClicked: AwaitingEditor, EventClose: Closing},
	AwaitingEditor:            {EventEditorReady: Writing, EventHistoryFound: Closing, EventClose: Closing},
	Writing:                   {EventVerified: AwaitingDispatchReadiness, EventClose: Closing},
	AwaitingDispatchReadiness: {EventSend: Dispatched, EventDiscard: Discarded, EventClose: Closing},
	Dispatched:                {EventClose: Closing},
	Discarded:                 {EventClose: Closing},
	Closing:                   {EventClosed: Closed},
}

// Next returns the state e leads to from s. Abort reaches Closed from every state; any
// other event that s does not accept fails with ErrIllegalTransition.
func Next(s State, e Event) (State, error) {
	if e == EventAbort {
		return Closed, nil
	}
	if to, ok := transitions[s][e]; ok {
		return to, nil
	}
	return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, s, e)
}

// CanClose reports whether the defensive close is still reachable from s.
func CanClose(s State) bool {
	_, ok := transitions[s][EventClose]
	return ok
}

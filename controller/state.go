package controller

import (
	"fmt"
	"strings"

	"github.com/fornellas/cncstream/grbl"
)

// State is the detailed machine mode.
type State int

const (
	StateDisconnected State = iota
	StateIdle
	StateRun
	StateHold
	StateAlarm
	StateHome
	StateJog
	StateDoor
	StateCheck
	StateSleep
)

var stateNames = map[State]string{
	StateDisconnected: "Disconnected",
	StateIdle:         "Idle",
	StateRun:          "Run",
	StateHold:         "Hold",
	StateAlarm:        "Alarm",
	StateHome:         "Home",
	StateJog:          "Jog",
	StateDoor:         "Door",
	StateCheck:        "Check",
	StateSleep:        "Sleep",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%d)", int(s))
}

// Status is a coarse projection of State.
type Status int

const (
	StatusIdle Status = iota
	StatusRun
	StatusHold
	StatusAlarm
)

var statusNames = map[Status]string{
	StatusIdle:  "Idle",
	StatusRun:   "Run",
	StatusHold:  "Hold",
	StatusAlarm: "Alarm",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%d)", int(s))
}

// Status projects the state: homing and jogging are running, door, check and sleep are idle.
func (s State) Status() Status {
	switch s {
	case StateRun, StateHome, StateJog:
		return StatusRun
	case StateHold:
		return StatusHold
	case StateAlarm:
		return StatusAlarm
	default:
		return StatusIdle
	}
}

var stateTokens = []struct {
	token string
	state State
}{
	{grbl.StateIdle, StateIdle},
	{grbl.StateRun, StateRun},
	{grbl.StateHold, StateHold},
	{grbl.StateAlarm, StateAlarm},
	{grbl.StateHome, StateHome},
	{grbl.StateJog, StateJog},
	{grbl.StateDoor, StateDoor},
	{grbl.StateCheck, StateCheck},
	{grbl.StateSleep, StateSleep},
}

// ParseState matches a status report machine state token by prefix, so sub-state qualifiers such
// as "Hold:1" are accepted. Unknown tokens yield StateIdle along with ErrUnknownMachineState.
func ParseState(token string) (State, error) {
	for _, st := range stateTokens {
		if strings.HasPrefix(token, st.token) {
			return st.state, nil
		}
	}
	return StateIdle, fmt.Errorf("%w: %#v", ErrUnknownMachineState, token)
}

package chase

import "chasescene/internal/shared/types"

// State is the active step of the chase.
type State uint8

const (
	IdleAtStart State = iota
	WaitAtRed
	RedDecision
	ChaseBegin
	TurnLeftAtJunction
	ChoicePoint
	BranchLeft
	BranchStraight
	FinalCarTurn
	Finished
)

var stateNames = [...]string{
	IdleAtStart:        "idle_at_start",
	WaitAtRed:          "wait_at_red",
	RedDecision:        "red_decision",
	ChaseBegin:         "chase_begin",
	TurnLeftAtJunction: "turn_left_at_junction",
	ChoicePoint:        "choice_point",
	BranchLeft:         "branch_left",
	BranchStraight:     "branch_straight",
	FinalCarTurn:       "final_car_turn",
	Finished:           "finished",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Timed reports whether the state is left when its segment timer reaches 1.
func (s State) Timed() bool {
	switch s {
	case IdleAtStart, WaitAtRed, ChaseBegin, TurnLeftAtJunction, BranchLeft, BranchStraight, FinalCarTurn:
		return true
	}
	return false
}

// Cause explains why a transition happened.
type Cause uint8

const (
	CauseNone Cause = iota
	CauseTimer
	CauseProceed
	CauseLeft
	CauseRight
	CauseTimeout
)

func (c Cause) String() string {
	switch c {
	case CauseTimer:
		return "timer"
	case CauseProceed:
		return "proceed"
	case CauseLeft:
		return "left"
	case CauseRight:
		return "right"
	case CauseTimeout:
		return "timeout"
	}
	return "none"
}

// Next is the transition function. u is the lead's normalized segment time,
// pressed holds this frame's key-press edges and choiceExpired reports whether
// the ChoicePoint window has closed. Keys irrelevant to s are ignored.
//
// At ChoicePoint the left key is checked first, so pressing left and right in
// the same frame takes the left branch.
func Next(s State, u float64, pressed types.KeyState, choiceExpired bool) (State, Cause) {
	switch s {
	case RedDecision:
		if pressed.Proceed {
			return ChaseBegin, CauseProceed
		}
		return s, CauseNone
	case ChoicePoint:
		switch {
		case pressed.Left:
			return BranchLeft, CauseLeft
		case pressed.Right:
			return BranchStraight, CauseRight
		case choiceExpired:
			return BranchStraight, CauseTimeout
		}
		return s, CauseNone
	case Finished:
		return s, CauseNone
	}

	if u < 1 {
		return s, CauseNone
	}
	switch s {
	case IdleAtStart:
		return WaitAtRed, CauseTimer
	case WaitAtRed:
		return RedDecision, CauseTimer
	case ChaseBegin:
		return TurnLeftAtJunction, CauseTimer
	case TurnLeftAtJunction:
		return ChoicePoint, CauseTimer
	case BranchLeft:
		return Finished, CauseTimer
	case BranchStraight:
		return FinalCarTurn, CauseTimer
	case FinalCarTurn:
		return Finished, CauseTimer
	}
	return s, CauseNone
}

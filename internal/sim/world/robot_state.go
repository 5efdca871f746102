package world

import (
	"fmt"

	"github.com/cory-johannsen/fleetsim/internal/sim/entity"
	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
)

// StateKind tags the variant held by a State.
type StateKind uint8

const (
	StateIdle StateKind = iota
	StateMoveTo
	StatePickup
	StateDropOff
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "IDLE"
	case StateMoveTo:
		return "MOVE_TO"
	case StatePickup:
		return "PICKUP"
	case StateDropOff:
		return "DROP_OFF"
	default:
		return fmt.Sprintf("StateKind(%d)", uint8(k))
	}
}

// State is a robot task state. Which fields are meaningful depends on Kind:
//
//	MoveTo:  Destination, Target (informational), Next (state on arrival)
//	Pickup:  Target (source), Stack, Next (continuation, nil means Idle)
//	DropOff: Target (destination), Stack
type State struct {
	Kind        StateKind
	Target      entity.ID
	Destination geom.Vec2
	Stack       item.Stack
	Next        *State
}

// Idle returns the resting state.
func Idle() State { return State{Kind: StateIdle} }

// MoveTo travels to destination and then enters onArrival.
func MoveTo(destination geom.Vec2, target entity.ID, onArrival State) State {
	return State{Kind: StateMoveTo, Destination: destination, Target: target, Next: &onArrival}
}

// Pickup takes up to s.Amount of s.Type from source, then enters then, or
// Idle when then is nil.
func Pickup(source entity.ID, s item.Stack, then *State) State {
	return State{Kind: StatePickup, Target: source, Stack: s, Next: then}
}

// DropOff hands up to s.Amount of s.Type to destination, then goes Idle.
func DropOff(destination entity.ID, s item.Stack) State {
	return State{Kind: StateDropOff, Target: destination, Stack: s}
}

// TransferPlan is the composite MoveTo(src) -> Pickup -> MoveTo(dst) -> DropOff -> Idle.
func TransferPlan(src Entity, s item.Stack, dst Entity) State {
	deliver := DeliverPlan(dst, s)
	return MoveTo(src.Position(), src.ID(), Pickup(src.ID(), s, &deliver))
}

// DeliverPlan is MoveTo(dst) -> DropOff -> Idle for a robot already carrying s.
func DeliverPlan(dst Entity, s item.Stack) State {
	return MoveTo(dst.Position(), dst.ID(), DropOff(dst.ID(), s))
}

func (s State) String() string {
	switch s.Kind {
	case StateIdle:
		return "IDLE"
	case StateMoveTo:
		next := "?"
		if s.Next != nil {
			next = s.Next.Kind.String()
		}
		return fmt.Sprintf("MOVE_TO[%s %s then %s]", s.Target, s.Destination, next)
	case StatePickup:
		return fmt.Sprintf("PICKUP[%s from %s]", s.Stack, s.Target)
	case StateDropOff:
		return fmt.Sprintf("DROP_OFF[%s to %s]", s.Stack, s.Target)
	default:
		return s.Kind.String()
	}
}

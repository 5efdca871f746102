package world

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fleetsim/internal/sim/entity"
	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
	"github.com/cory-johannsen/fleetsim/internal/sim/inventory"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
)

// RobotParams are the per-instance tunables of a robot.
type RobotParams struct {
	// Capacity is the maximum number of units carried at once.
	Capacity int
	// Speed is the travel distance per simulated second.
	Speed float64
	// ArrivalTolerance is the distance within which a destination counts as reached.
	ArrivalTolerance float64
}

// DefaultRobotParams matches the defaults in configs/dev.yaml.
func DefaultRobotParams() RobotParams {
	return RobotParams{Capacity: 5, Speed: 0.1, ArrivalTolerance: 0.1}
}

// Robot executes transfer tasks issued by its controller. It never caches
// what it carries; the ledger is consulted instead.
//
// Invariant: a robot carries at most one item type at a time.
type Robot struct {
	entity.Base
	RobotParams

	controller entity.ID
	state      State
}

// NewRobot returns an idle robot at pos.
//
// Precondition: ids non-nil; p.Capacity > 0; p.Speed > 0.
func NewRobot(ids *entity.Allocator, pos geom.Vec2, p RobotParams) *Robot {
	return &Robot{Base: entity.NewBase(ids, pos), RobotParams: p, state: Idle()}
}

// Kind implements Entity.
func (r *Robot) Kind() Kind { return KindRobot }

// Controller returns the id of the owning controller, or entity.None before
// registration.
func (r *Robot) Controller() entity.ID { return r.controller }

// State returns the current task state.
func (r *Robot) State() State { return r.state }

// IsIdle reports whether the robot can accept a new task.
func (r *Robot) IsIdle() bool { return r.state.Kind == StateIdle }

// CarriedItem returns the type currently carried.
//
// Postcondition: ok is false when the robot is empty.
func (r *Robot) CarriedItem(l *inventory.Ledger) (t item.Type, ok bool) {
	stacks := l.Amounts(r.ID())
	if len(stacks) == 0 {
		return item.Unknown, false
	}
	return stacks[0].Type, true
}

// CarriedAmount returns the number of units carried.
func (r *Robot) CarriedAmount(l inventory.Reader) int {
	return l.StoredAmount(r.ID())
}

// AcceptedAmount implements inventory.Receiver: an empty robot takes up to
// its capacity; a loaded one only tops up the type it already carries.
func (r *Robot) AcceptedAmount(t item.Type, l inventory.Reader) int {
	stored := l.StoredAmount(r.ID())
	if stored > 0 && l.Amount(r.ID(), t) != stored {
		return 0
	}
	return max(r.Capacity-stored, 0)
}

// Tick implements Ticker: it runs one step of the current state and lets the
// World apply the transition.
func (r *Robot) Tick(dt float64, w *World) error {
	next, err := r.step(dt, w)
	if err != nil {
		return err
	}
	w.setRobotState(r, next)
	return nil
}

// step is the state transition function. Movement and ledger transfers are
// its only side effects; occupancy bookkeeping is left to the caller.
func (r *Robot) step(dt float64, w *World) (State, error) {
	s := r.state
	switch s.Kind {
	case StateIdle:
		return s, nil

	case StateMoveTo:
		if s.Next == nil {
			return State{}, fmt.Errorf("robot %s: move without arrival state", r.ID())
		}
		pos := r.Position().MoveTowards(s.Destination, r.Speed*dt)
		r.SetPosition(pos)
		if pos.Dst2(s.Destination) <= r.ArrivalTolerance*r.ArrivalTolerance {
			return *s.Next, nil
		}
		return s, nil

	case StatePickup:
		l := w.Inventory()
		toTake := min(r.AcceptedAmount(s.Stack.Type, l), s.Stack.Amount)
		taken, err := l.Transfer(s.Target, s.Stack.Type, toTake, r)
		if err != nil {
			return State{}, fmt.Errorf("robot %s pickup: %w", r.ID(), err)
		}
		w.Logger().Debug("robot picked up",
			zap.Stringer("robot", r.ID()),
			zap.Stringer("source", s.Target),
			zap.Stringer("requested", s.Stack),
			zap.Int("taken", taken),
		)
		if s.Next != nil && r.CarriedAmount(l) > 0 {
			return *s.Next, nil
		}
		return Idle(), nil

	case StateDropOff:
		l := w.Inventory()
		dst, err := w.receiver(s.Target)
		if err != nil {
			return State{}, fmt.Errorf("robot %s drop-off: %w", r.ID(), err)
		}
		toGive := min(l.Amount(r.ID(), s.Stack.Type), s.Stack.Amount)
		given, err := l.Transfer(r.ID(), s.Stack.Type, toGive, dst)
		if err != nil {
			return State{}, fmt.Errorf("robot %s drop-off: %w", r.ID(), err)
		}
		w.Logger().Debug("robot dropped off",
			zap.Stringer("robot", r.ID()),
			zap.Stringer("destination", s.Target),
			zap.Stringer("requested", s.Stack),
			zap.Int("given", given),
		)
		return Idle(), nil

	default:
		return State{}, errors.New("robot: unknown state kind " + s.Kind.String())
	}
}

func (r *Robot) String() string {
	return fmt.Sprintf("Robot %s [%s] at %s", r.ID(), r.state, r.Position())
}

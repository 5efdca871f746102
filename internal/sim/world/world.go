// Package world is the coordination core of the fleet simulation: the entity
// registry and message router (World), the per-tick broker (Controller), the
// robot task state machine (Robot), and the producers and consumers that
// announce supply and demand (Depot, Factory).
//
// A World is not safe for concurrent use. Callers that share one across
// goroutines must serialize every call.
package world

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fleetsim/internal/sim/entity"
	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
	"github.com/cory-johannsen/fleetsim/internal/sim/inventory"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
	"github.com/cory-johannsen/fleetsim/internal/sim/message"
)

var (
	// ErrNoCapacityInRange reports that no controller in range of a new robot
	// has room for it.
	ErrNoCapacityInRange = errors.New("no controller with capacity in range")
	// ErrMessageDropped reports a message that reached no controller. It is
	// recoverable: producers re-announce every tick.
	ErrMessageDropped = errors.New("message dropped")
	// ErrStateConflict reports a command issued to a robot that is not idle.
	ErrStateConflict = errors.New("robot state conflict")
	// ErrUnknownEntity reports an id that is not registered.
	ErrUnknownEntity = errors.New("unknown entity")
)

// Options tunes a World.
type Options struct {
	// VerifyInvariants re-checks ledger consistency and every controller's
	// occupancy partition after each tick.
	VerifyInvariants bool
}

// World owns every entity, routes messages to controllers by broadcast range,
// and drives the sequential tick.
//
// Invariant: entities are ticked in registration order; every registered
// robot belongs to exactly one registered controller.
type World struct {
	logger    *zap.Logger
	opts      Options
	ids       *entity.Allocator
	msgIDs    *entity.Allocator
	inventory *inventory.Ledger

	entities    map[entity.ID]Entity
	order       []Entity
	controllers []*Controller
	robots      []*Robot
	depots      []*Depot
	factories   []*Factory

	tick uint64
}

// New returns an empty World with its own id allocator and ledger.
// A nil logger disables logging.
//
// Postcondition: Returns a non-nil World at tick 0.
func New(logger *zap.Logger, opts Options) *World {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &World{
		logger:    logger,
		opts:      opts,
		ids:       entity.NewAllocator(),
		msgIDs:    entity.NewAllocator(),
		inventory: inventory.NewLedger(logger.Named("ledger")),
		entities:  make(map[entity.ID]Entity),
	}
}

// Allocator returns the id allocator entity constructors must draw from.
func (w *World) Allocator() *entity.Allocator { return w.ids }

// Inventory returns the ledger shared by every entity.
func (w *World) Inventory() *inventory.Ledger { return w.inventory }

// Logger returns the world's logger.
func (w *World) Logger() *zap.Logger { return w.logger }

// CurrentTick returns the number of completed ticks.
func (w *World) CurrentTick() uint64 { return w.tick }

// Add registers e. A robot is assigned to the in-range controller with spare
// capacity that currently has the fewest robots.
//
// Precondition: e was built with this World's Allocator.
// Postcondition: on error nothing is registered. Returns ErrNoCapacityInRange
// when a robot has no eligible controller.
func (w *World) Add(e Entity) error {
	if e == nil {
		return errors.New("world.Add: entity must not be nil")
	}
	id := e.ID()
	if id == entity.None {
		return errors.New("world.Add: entity has no id")
	}
	if _, exists := w.entities[id]; exists {
		return fmt.Errorf("world.Add: duplicate entity id %s", id)
	}

	switch v := e.(type) {
	case *Controller:
		w.controllers = append(w.controllers, v)
	case *Robot:
		c := w.leastLoadedControllerFor(v.Position())
		if c == nil {
			return fmt.Errorf("registering robot %s at %s: %w", id, v.Position(), ErrNoCapacityInRange)
		}
		c.assign(v, w)
		w.robots = append(w.robots, v)
		w.logger.Debug("robot assigned",
			zap.Stringer("robot", id),
			zap.Stringer("controller", c.ID()),
			zap.Int("controller_robots", c.RobotCount()),
		)
	case *Depot:
		w.depots = append(w.depots, v)
	case *Factory:
		w.factories = append(w.factories, v)
	default:
		return fmt.Errorf("world.Add: unsupported entity type %T", e)
	}

	w.entities[id] = e
	w.order = append(w.order, e)
	return nil
}

func (w *World) leastLoadedControllerFor(p geom.Vec2) *Controller {
	var best *Controller
	for _, c := range w.controllers {
		if !c.InRange(p) || c.RobotCount() >= c.MaxRobots {
			continue
		}
		if best == nil || c.RobotCount() < best.RobotCount() {
			best = c
		}
	}
	return best
}

// Entity returns the entity registered under id.
func (w *World) Entity(id entity.ID) (Entity, bool) {
	e, ok := w.entities[id]
	return e, ok
}

// Robot returns the robot registered under id.
func (w *World) Robot(id entity.ID) (*Robot, bool) {
	r, ok := w.entities[id].(*Robot)
	return r, ok
}

// Controller returns the controller registered under id.
func (w *World) Controller(id entity.ID) (*Controller, bool) {
	c, ok := w.entities[id].(*Controller)
	return c, ok
}

// Controllers returns every controller in registration order.
func (w *World) Controllers() []*Controller {
	out := make([]*Controller, len(w.controllers))
	copy(out, w.controllers)
	return out
}

// Robots returns every robot in registration order.
func (w *World) Robots() []*Robot {
	out := make([]*Robot, len(w.robots))
	copy(out, w.robots)
	return out
}

// Depots returns every depot in registration order.
func (w *World) Depots() []*Depot {
	out := make([]*Depot, len(w.depots))
	copy(out, w.depots)
	return out
}

// Factories returns every factory in registration order.
func (w *World) Factories() []*Factory {
	out := make([]*Factory, len(w.factories))
	copy(out, w.factories)
	return out
}

// Stock creates amount units of t at id. Robots have their controller's
// occupancy refreshed so a pre-loaded robot is seen as idle-carrying.
//
// Precondition: id is registered.
func (w *World) Stock(id entity.ID, t item.Type, amount int) error {
	e, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("stocking %s: %w", id, ErrUnknownEntity)
	}
	if err := w.inventory.Create(id, t, amount); err != nil {
		return fmt.Errorf("stocking %d %s at %s: %w", amount, t, id, err)
	}
	if r, ok := e.(*Robot); ok {
		w.robotOccupancyChanged(r)
	}
	return nil
}

// NewMessage builds a message with a fresh message id.
func (w *World) NewMessage(sender entity.ID, kind message.Kind, payload item.Stack, prio message.Priority) message.Message {
	return message.New(uint64(w.msgIDs.Next()), sender, kind, payload, prio)
}

// SendMessage delivers msg to every controller whose broadcast circle
// contains the sender.
//
// Precondition: msg.Sender is registered.
// Postcondition: Returns an error wrapping ErrMessageDropped when no
// controller received the message; nothing is retried.
func (w *World) SendMessage(msg message.Message) error {
	sender, ok := w.entities[msg.Sender]
	if !ok {
		return fmt.Errorf("sending %s: sender %w", msg, ErrUnknownEntity)
	}
	delivered := 0
	for _, c := range w.controllers {
		if c.InRange(sender.Position()) {
			c.Receive(msg)
			delivered++
		}
	}
	if delivered == 0 {
		w.logger.Debug("message dropped, no controller in range",
			zap.Stringer("message", msg),
			zap.Stringer("sender_position", sender.Position()),
		)
		return fmt.Errorf("%s from %s: %w", msg.Kind, msg.Sender, ErrMessageDropped)
	}
	return nil
}

// announce sends a message on behalf of a producer or consumer. Dropped
// messages are not errors for the sender.
func (w *World) announce(sender entity.ID, kind message.Kind, payload item.Stack, prio message.Priority) error {
	err := w.SendMessage(w.NewMessage(sender, kind, payload, prio))
	if errors.Is(err, ErrMessageDropped) {
		return nil
	}
	return err
}

// EntityAt returns the first entity, in registration order, whose bounding
// box contains p.
func (w *World) EntityAt(p geom.Vec2) (Entity, bool) {
	for _, e := range w.order {
		if e.BoundingBox().Contains(p) {
			return e, true
		}
	}
	return nil, false
}

// ClosestAcceptingDepot returns the depot nearest to from that currently
// accepts a positive amount of t, skipping exclude, together with that
// accepted amount.
//
// Postcondition: Returns (nil, 0) when no depot qualifies.
func (w *World) ClosestAcceptingDepot(from geom.Vec2, t item.Type, exclude entity.ID) (*Depot, int) {
	var (
		best     *Depot
		accepted int
		bestDst2 = math.Inf(1)
	)
	for _, d := range w.depots {
		if d.ID() == exclude {
			continue
		}
		n := d.AcceptedAmount(t, w.inventory)
		if n <= 0 {
			continue
		}
		if dst2 := d.Dst2(from); dst2 < bestDst2 {
			best, accepted, bestDst2 = d, n, dst2
		}
	}
	return best, accepted
}

// Tick advances the simulation by dt seconds, ticking every entity in
// registration order.
//
// Precondition: dt is finite and >= 0.
// Postcondition: the first entity error aborts the tick and is returned
// wrapped with the entity id. With VerifyInvariants, a broken ledger or
// occupancy partition is returned as inventory.ErrInvariantViolation.
func (w *World) Tick(dt float64) error {
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return fmt.Errorf("world.Tick: delta must be finite and >= 0, got %v", dt)
	}
	w.tick++
	for _, e := range w.order {
		t, ok := e.(Ticker)
		if !ok {
			continue
		}
		if err := t.Tick(dt, w); err != nil {
			w.logger.Error("entity tick failed",
				zap.Uint64("tick", w.tick),
				zap.Stringer("kind", e.Kind()),
				zap.Stringer("entity", e.ID()),
				zap.Error(err),
			)
			return fmt.Errorf("tick %d: %s %s: %w", w.tick, e.Kind(), e.ID(), err)
		}
	}
	if w.opts.VerifyInvariants {
		if err := w.CheckInvariants(); err != nil {
			w.logger.Error("invariant check failed", zap.Uint64("tick", w.tick), zap.Error(err))
			return fmt.Errorf("tick %d: %w", w.tick, err)
		}
	}
	return nil
}

// CheckInvariants verifies ledger consistency and every controller's
// occupancy partition.
func (w *World) CheckInvariants() error {
	if err := w.inventory.CheckConsistency(); err != nil {
		return err
	}
	for _, c := range w.controllers {
		if err := c.CheckPartition(w); err != nil {
			return err
		}
	}
	return nil
}

// dispatch hands plan to an idle robot.
//
// Postcondition: returns ErrStateConflict and changes nothing when r is busy.
func (w *World) dispatch(r *Robot, plan State) error {
	if !r.IsIdle() {
		return fmt.Errorf("dispatching %s to robot %s in state %s: %w", plan, r.ID(), r.State(), ErrStateConflict)
	}
	w.logger.Debug("robot dispatched",
		zap.Stringer("robot", r.ID()),
		zap.Stringer("plan", plan),
		zap.Float64("distance", r.Position().Dst(plan.Destination)),
	)
	w.setRobotState(r, plan)
	return nil
}

// setRobotState applies a transition and runs the Idle enter/exit
// notification around it.
func (w *World) setRobotState(r *Robot, next State) {
	wasIdle := r.IsIdle()
	r.state = next
	if wasIdle != r.IsIdle() {
		w.robotOccupancyChanged(r)
	}
}

func (w *World) robotOccupancyChanged(r *Robot) {
	c, ok := w.Controller(r.controller)
	if !ok {
		return
	}
	c.refresh(r, w.inventory)
}

// receiver resolves a ledger receiver by id.
func (w *World) receiver(id entity.ID) (inventory.Receiver, error) {
	e, ok := w.entities[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownEntity)
	}
	recv, ok := e.(inventory.Receiver)
	if !ok {
		return nil, fmt.Errorf("%s %s cannot receive items", e.Kind(), id)
	}
	return recv, nil
}

package world

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fleetsim/internal/sim/entity"
	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
	"github.com/cory-johannsen/fleetsim/internal/sim/inventory"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
	"github.com/cory-johannsen/fleetsim/internal/sim/message"
	"github.com/cory-johannsen/fleetsim/internal/sim/rng"
)

// ControllerParams are the per-instance tunables of a controller.
type ControllerParams struct {
	// BroadcastRadius bounds both message reception and robot assignment.
	BroadcastRadius float64
	// MaxRobots is the number of robots the controller can own.
	MaxRobots int
}

// DefaultControllerParams matches the defaults in configs/dev.yaml.
func DefaultControllerParams() ControllerParams {
	return ControllerParams{BroadcastRadius: 0.5, MaxRobots: 20}
}

// ControllerStatus is a point-in-time view of a controller's occupancy.
type ControllerStatus struct {
	ID           entity.ID `json:"id"`
	Robots       int       `json:"robots"`
	Busy         int       `json:"busy"`
	IdleEmpty    int       `json:"idle_empty"`
	IdleCarrying int       `json:"idle_carrying"`
	Utilization  float64   `json:"utilization"`
}

// Controller is the per-tick broker. It collects the offers and requests
// broadcast within its range and matches them to the robots it owns.
//
// Invariant: busy, idleEmpty and idleCarrying partition the owned robots.
type Controller struct {
	entity.Base
	ControllerParams

	logger *zap.Logger
	src    rng.Source

	offers   []message.Message
	requests []message.Message

	robots       []entity.ID
	busy         map[entity.ID]struct{}
	idleEmpty    map[entity.ID]struct{}
	idleCarrying map[entity.ID]struct{}
}

// NewController returns a controller with no robots.
//
// Precondition: ids and src non-nil; p.BroadcastRadius > 0; p.MaxRobots > 0.
// A nil logger disables logging.
func NewController(ids *entity.Allocator, pos geom.Vec2, p ControllerParams, src rng.Source, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := entity.NewBase(ids, pos)
	return &Controller{
		Base:             base,
		ControllerParams: p,
		logger:           logger.With(zap.Stringer("controller", base.ID())),
		src:              src,
		busy:             make(map[entity.ID]struct{}),
		idleEmpty:        make(map[entity.ID]struct{}),
		idleCarrying:     make(map[entity.ID]struct{}),
	}
}

// Kind implements Entity.
func (c *Controller) Kind() Kind { return KindController }

// InRange reports whether p lies within the broadcast circle.
func (c *Controller) InRange(p geom.Vec2) bool {
	return c.Dst2(p) <= c.BroadcastRadius*c.BroadcastRadius
}

// RobotCount returns the number of owned robots.
func (c *Controller) RobotCount() int { return len(c.robots) }

// Receive queues msg for the current tick.
func (c *Controller) Receive(msg message.Message) {
	switch msg.Kind {
	case message.Offer:
		c.offers = append(c.offers, msg)
	case message.Request:
		c.requests = append(c.requests, msg)
	default:
		c.logger.Warn("ignoring message of unknown kind", zap.Stringer("message", msg))
	}
}

// Pending returns the number of queued offers and requests.
func (c *Controller) Pending() (offers, requests int) {
	return len(c.offers), len(c.requests)
}

// Status returns the occupancy counts.
func (c *Controller) Status() ControllerStatus {
	st := ControllerStatus{
		ID:           c.ID(),
		Robots:       len(c.robots),
		Busy:         len(c.busy),
		IdleEmpty:    len(c.idleEmpty),
		IdleCarrying: len(c.idleCarrying),
	}
	if st.Robots > 0 {
		st.Utilization = float64(st.Busy) / float64(st.Robots)
	}
	return st
}

// assign takes ownership of r. Capacity and range are checked by the World.
func (c *Controller) assign(r *Robot, w *World) {
	r.controller = c.ID()
	c.robots = append(c.robots, r.ID())
	c.refresh(r, w.Inventory())
}

// refresh moves r into the occupancy set matching its current state.
func (c *Controller) refresh(r *Robot, l *inventory.Ledger) {
	id := r.ID()
	delete(c.busy, id)
	delete(c.idleEmpty, id)
	delete(c.idleCarrying, id)
	switch {
	case !r.IsIdle():
		c.busy[id] = struct{}{}
	case r.CarriedAmount(l) == 0:
		c.idleEmpty[id] = struct{}{}
	default:
		c.idleCarrying[id] = struct{}{}
	}
}

// CheckPartition verifies that the three occupancy sets are a disjoint cover
// of the owned robots and agree with each robot's actual state.
func (c *Controller) CheckPartition(w *World) error {
	total := len(c.busy) + len(c.idleEmpty) + len(c.idleCarrying)
	if total != len(c.robots) {
		return fmt.Errorf("%w: controller %s tracks %d occupancy entries for %d robots",
			inventory.ErrInvariantViolation, c.ID(), total, len(c.robots))
	}
	for _, id := range c.robots {
		r, ok := w.Robot(id)
		if !ok {
			return fmt.Errorf("%w: controller %s owns unregistered robot %s", inventory.ErrInvariantViolation, c.ID(), id)
		}
		_, busy := c.busy[id]
		_, empty := c.idleEmpty[id]
		_, carrying := c.idleCarrying[id]
		want := [3]bool{!r.IsIdle(), r.IsIdle() && r.CarriedAmount(w.Inventory()) == 0, r.IsIdle() && r.CarriedAmount(w.Inventory()) > 0}
		if [3]bool{busy, empty, carrying} != want {
			return fmt.Errorf("%w: controller %s has robot %s as busy=%t idle-empty=%t idle-carrying=%t in state %s",
				inventory.ErrInvariantViolation, c.ID(), id, busy, empty, carrying, r.State())
		}
	}
	return nil
}

// Tick runs one matching round over the messages received since the last
// tick, then discards them.
//
// Postcondition: offers and requests are empty; every dispatched robot was
// idle before dispatch.
func (c *Controller) Tick(_ float64, w *World) error {
	defer func() {
		c.offers = c.offers[:0]
		c.requests = c.requests[:0]
	}()

	requests := c.shuffledRequests()
	served := make([]bool, len(requests))

	if err := c.serveFromCarrying(w, requests, served); err != nil {
		return err
	}
	offerUsed := make([]bool, len(c.offers))
	if err := c.serveFromOffers(w, requests, served, offerUsed); err != nil {
		return err
	}
	if err := c.unloadCarrying(w); err != nil {
		return err
	}
	return c.restock(w, offerUsed)
}

// shuffledRequests groups requests by descending priority and permutes each
// batch so equal-priority requests take turns when supply is scarce.
func (c *Controller) shuffledRequests() []message.Message {
	out := make([]message.Message, 0, len(c.requests))
	for _, batch := range message.Batch(c.requests) {
		rng.Shuffle(c.src, len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
		out = append(out, batch...)
	}
	return out
}

// serveFromCarrying dispatches idle robots that already hold a requested
// item before any empty robot is used.
func (c *Controller) serveFromCarrying(w *World, requests []message.Message, served []bool) error {
	l := w.Inventory()
	for i, req := range requests {
		if len(c.idleCarrying) == 0 {
			return nil
		}
		requester, ok := w.Entity(req.Sender)
		if !ok {
			continue
		}
		r := c.nearestRobot(w, c.idleCarrying, requester.Position(), func(r *Robot) bool {
			carried, ok := r.CarriedItem(l)
			return ok && carried.Matches(req.Payload.Type)
		})
		if r == nil {
			continue
		}
		carried, _ := r.CarriedItem(l)
		if err := w.dispatch(r, DeliverPlan(requester, item.NewStack(carried, req.Payload.Amount))); err != nil {
			return err
		}
		served[i] = true
	}
	return nil
}

// serveFromOffers pairs each unserved request with the nearest matching offer
// and the idle empty robot nearest to that offer.
func (c *Controller) serveFromOffers(w *World, requests []message.Message, served, offerUsed []bool) error {
	for i, req := range requests {
		if len(c.idleEmpty) == 0 {
			return nil
		}
		if served[i] {
			continue
		}
		requester, ok := w.Entity(req.Sender)
		if !ok {
			continue
		}
		oi := c.nearestOffer(w, requester, req.Payload.Type, offerUsed)
		if oi < 0 {
			continue
		}
		offer := c.offers[oi]
		source, _ := w.Entity(offer.Sender)
		r := c.nearestRobot(w, c.idleEmpty, source.Position(), nil)
		if r == nil {
			continue
		}
		stack := offer.Payload.Clip(req.Payload.Amount)
		if err := w.dispatch(r, TransferPlan(source, stack, requester)); err != nil {
			return err
		}
		offerUsed[oi] = true
		served[i] = true
	}
	return nil
}

// unloadCarrying sends every robot still idle with cargo to the nearest
// depot that accepts it.
func (c *Controller) unloadCarrying(w *World) error {
	l := w.Inventory()
	for _, id := range c.robots {
		if _, ok := c.idleCarrying[id]; !ok {
			continue
		}
		r, _ := w.Robot(id)
		carried, ok := r.CarriedItem(l)
		if !ok {
			continue
		}
		depot, accepted := w.ClosestAcceptingDepot(r.Position(), carried, entity.None)
		if depot == nil {
			continue
		}
		toDeliver := min(accepted, l.Amount(id, carried))
		if toDeliver <= 0 {
			continue
		}
		if err := w.dispatch(r, DeliverPlan(depot, item.NewStack(carried, toDeliver))); err != nil {
			return err
		}
	}
	return nil
}

// restock pushes unclaimed offers, highest priority first, to the nearest
// depot that accepts them, one offer per idle empty robot.
func (c *Controller) restock(w *World, offerUsed []bool) error {
	remaining := make([]message.Message, 0, len(c.offers))
	for i, o := range c.offers {
		if !offerUsed[i] {
			remaining = append(remaining, o)
		}
	}
	message.SortByPriority(remaining)

	for _, offer := range remaining {
		if len(c.idleEmpty) == 0 {
			return nil
		}
		source, ok := w.Entity(offer.Sender)
		if !ok {
			continue
		}
		depot, accepted := w.ClosestAcceptingDepot(source.Position(), offer.Payload.Type, offer.Sender)
		if depot == nil {
			continue
		}
		stack := offer.Payload.Clip(accepted)
		if stack.Amount <= 0 {
			continue
		}
		r := c.nearestRobot(w, c.idleEmpty, source.Position(), nil)
		if r == nil {
			return nil
		}
		if err := w.dispatch(r, TransferPlan(source, stack, depot)); err != nil {
			return err
		}
	}
	return nil
}

// nearestRobot returns the robot in set closest to p that satisfies accept.
// Ties go to the robot assigned first.
func (c *Controller) nearestRobot(w *World, set map[entity.ID]struct{}, p geom.Vec2, accept func(*Robot) bool) *Robot {
	var (
		best     *Robot
		bestDst2 = math.Inf(1)
	)
	for _, id := range c.robots {
		if _, ok := set[id]; !ok {
			continue
		}
		r, ok := w.Robot(id)
		if !ok || (accept != nil && !accept(r)) {
			continue
		}
		if d := r.Dst2(p); d < bestDst2 {
			best, bestDst2 = r, d
		}
	}
	return best
}

// nearestOffer returns the index of the unused offer of a matching type
// closest to requester, ignoring offers the requester made itself, or -1.
func (c *Controller) nearestOffer(w *World, requester Entity, t item.Type, used []bool) int {
	best := -1
	bestDst2 := math.Inf(1)
	for i, o := range c.offers {
		if used[i] || o.Sender == requester.ID() || o.Payload.Amount <= 0 || !o.Matches(t) {
			continue
		}
		source, ok := w.Entity(o.Sender)
		if !ok {
			continue
		}
		if d := source.Position().Dst2(requester.Position()); d < bestDst2 {
			best, bestDst2 = i, d
		}
	}
	return best
}

func (c *Controller) String() string {
	st := c.Status()
	return fmt.Sprintf("Controller %s [%d busy, %d idle carrying, %d idle empty, %.0f%% busy]",
		c.ID(), st.Busy, st.IdleCarrying, st.IdleEmpty, st.Utilization*100)
}
